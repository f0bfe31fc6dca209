package engine

import (
	"strings"

	"github.com/roach88/cloister/internal/model"
)

// Action tags carried by inline buttons. Tags ending in ':' take the code
// as suffix.
const (
	tagIssueConfirm        = "issue:confirm"
	tagIssueCancel         = "issue:cancel"
	tagLookupClose         = "lookup:close"
	tagLookupRetire        = "lookup:retire:"
	tagLookupRetireConfirm = "lookup:retire-confirm:"
	tagLedgerConfirm       = "ledger:confirm"
	tagLedgerCancel        = "ledger:cancel"
)

type actionVerb int

const (
	verbUnknown actionVerb = iota
	verbConfirm
	verbCancel
	verbClose
	verbRetire
	verbRetireConfirm
)

// action is a parsed button tag.
type action struct {
	workflow model.Workflow
	verb     actionVerb
	code     string
}

// parseAction decodes a button tag. ok is false for tags this engine never
// produced.
func parseAction(tag string) (action, bool) {
	switch tag {
	case tagIssueConfirm:
		return action{workflow: model.WorkflowCodeIssue, verb: verbConfirm}, true
	case tagIssueCancel:
		return action{workflow: model.WorkflowCodeIssue, verb: verbCancel}, true
	case tagLookupClose:
		return action{workflow: model.WorkflowCodeLookup, verb: verbClose}, true
	case tagLedgerConfirm:
		return action{workflow: model.WorkflowLedgerEntry, verb: verbConfirm}, true
	case tagLedgerCancel:
		return action{workflow: model.WorkflowLedgerEntry, verb: verbCancel}, true
	}
	if code, ok := strings.CutPrefix(tag, tagLookupRetireConfirm); ok {
		return action{workflow: model.WorkflowCodeLookup, verb: verbRetireConfirm, code: code}, model.ValidCode(code)
	}
	if code, ok := strings.CutPrefix(tag, tagLookupRetire); ok {
		return action{workflow: model.WorkflowCodeLookup, verb: verbRetire, code: code}, model.ValidCode(code)
	}
	return action{}, false
}
