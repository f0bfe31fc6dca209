package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/cloister/internal/model"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		tag  string
		want action
		ok   bool
	}{
		{"issue:confirm", action{workflow: model.WorkflowCodeIssue, verb: verbConfirm}, true},
		{"issue:cancel", action{workflow: model.WorkflowCodeIssue, verb: verbCancel}, true},
		{"lookup:close", action{workflow: model.WorkflowCodeLookup, verb: verbClose}, true},
		{"lookup:retire:0042", action{workflow: model.WorkflowCodeLookup, verb: verbRetire, code: "0042"}, true},
		{"lookup:retire-confirm:0042", action{workflow: model.WorkflowCodeLookup, verb: verbRetireConfirm, code: "0042"}, true},
		{"ledger:confirm", action{workflow: model.WorkflowLedgerEntry, verb: verbConfirm}, true},
		{"ledger:cancel", action{workflow: model.WorkflowLedgerEntry, verb: verbCancel}, true},
		{"lookup:retire:42", action{}, false},
		{"lookup:retire-confirm:abcd", action{}, false},
		{"conferma_ritiro", action{}, false},
		{"", action{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, ok := parseAction(tt.tag)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
