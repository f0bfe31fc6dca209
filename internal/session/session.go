// Package session holds the transient, per-actor state of in-flight
// workflows.
//
// A session is a typed value (CodeIssue, CodeLookup or LedgerEntry) stored
// under (actor, workflow) together with the chat it started in. Values are copied in and out of the Store, so a
// handler never observes another turn's mutation without reading again.
// Nothing here is persisted: a process restart drops every dialogue.
package session

import (
	"slices"

	"github.com/roach88/cloister/internal/model"
)

// State is a node of a workflow's state machine.
type State string

const (
	IssueAwaitingNickname State = "issue.awaiting_nickname"
	IssueStaged           State = "issue.staged"

	LookupAwaitingCode          State = "lookup.awaiting_code"
	LookupResolved              State = "lookup.resolved"
	LookupAwaitingRetireConfirm State = "lookup.awaiting_retire_confirm"

	LedgerAwaitingNickname State = "ledger.awaiting_nickname"
	LedgerAwaitingQuantity State = "ledger.awaiting_quantity"
	LedgerAwaitingConfirm  State = "ledger.awaiting_confirm"
)

// AwaitsText reports whether the next actor text message belongs to a
// session in this state.
func (s State) AwaitsText() bool {
	switch s {
	case IssueAwaitingNickname, LookupAwaitingCode, LedgerAwaitingNickname, LedgerAwaitingQuantity:
		return true
	}
	return false
}

// Cursor owns the single message a workflow keeps rewriting.
type Cursor struct {
	ref model.MessageRef
}

// Replace points the cursor at a new message.
func (c *Cursor) Replace(ref model.MessageRef) {
	c.ref = ref
}

// Clear releases the cursor.
func (c *Cursor) Clear() {
	c.ref = model.MessageRef{}
}

// Ref returns the current message and whether one is held.
func (c Cursor) Ref() (model.MessageRef, bool) {
	return c.ref, !c.ref.IsZero()
}

// Session is implemented by CodeIssue, CodeLookup and LedgerEntry only.
type Session interface {
	Workflow() model.Workflow
	Current() State
	Prompt() Cursor
	clone() Session
}

// CodeIssue stages a generated code and its owner until confirmation.
type CodeIssue struct {
	State  State
	Code   string
	Owner  string
	Cursor Cursor
	// Transient lists messages to delete once collection is over.
	Transient []model.MessageRef
}

func (s CodeIssue) Workflow() model.Workflow { return model.WorkflowCodeIssue }
func (s CodeIssue) Current() State           { return s.State }
func (s CodeIssue) Prompt() Cursor           { return s.Cursor }

func (s CodeIssue) clone() Session {
	s.Transient = slices.Clone(s.Transient)
	return s
}

// CodeLookup stages the code resolved by a lookup for a later retirement.
type CodeLookup struct {
	State  State
	Code   string
	Cursor Cursor
}

func (s CodeLookup) Workflow() model.Workflow { return model.WorkflowCodeLookup }
func (s CodeLookup) Current() State           { return s.State }
func (s CodeLookup) Prompt() Cursor           { return s.Cursor }
func (s CodeLookup) clone() Session           { return s }

// LedgerEntry stages a distribution until confirmation.
type LedgerEntry struct {
	State    State
	Nickname string
	Quantity string
	Actor    model.ActorID
	Cursor   Cursor
}

func (s LedgerEntry) Workflow() model.Workflow { return model.WorkflowLedgerEntry }
func (s LedgerEntry) Current() State           { return s.State }
func (s LedgerEntry) Prompt() Cursor           { return s.Cursor }
func (s LedgerEntry) clone() Session           { return s }
