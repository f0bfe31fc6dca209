package model

import "time"

// ActorID identifies a human operator on the messaging platform.
type ActorID int64

// ChatID identifies a conversation (private chat or group) on the platform.
type ChatID int64

// MessageRef addresses a single message that can later be edited or deleted.
type MessageRef struct {
	Chat      ChatID `json:"chat"`
	MessageID int    `json:"message_id"`
}

// IsZero reports whether the reference points at nothing.
func (r MessageRef) IsZero() bool {
	return r.Chat == 0 && r.MessageID == 0
}

// Actor is the identity attached to every inbound update.
type Actor struct {
	ID          ActorID `json:"id"`
	DisplayName string  `json:"display_name"`
}

// Role is the authorization level of an actor.
type Role string

const (
	// RoleNone is returned for actors outside both allow-lists.
	RoleNone Role = ""
	// RoleInitiate may log ledger entries.
	RoleInitiate Role = "initiate"
	// RoleHermit may issue, look up and retire codes, and log ledger entries.
	RoleHermit Role = "hermit"
)

// Recognized reports whether the role belongs to an allow-listed actor.
func (r Role) Recognized() bool {
	return r == RoleHermit || r == RoleInitiate
}

// Workflow names one of the fixed multi-turn dialogues.
type Workflow string

const (
	WorkflowCodeIssue   Workflow = "code_issue"
	WorkflowCodeLookup  Workflow = "code_lookup"
	WorkflowLedgerEntry Workflow = "ledger_entry"
)

// Workflows lists every workflow in declaration order.
var Workflows = []Workflow{WorkflowCodeIssue, WorkflowCodeLookup, WorkflowLedgerEntry}

// AccessCode is a row of the code table.
//
// Code is unique across the full history: retired rows are kept so their
// digits are never handed out again.
type AccessCode struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	Owner     string     `json:"owner"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy ActorID    `json:"created_by"`
	Active    bool       `json:"active"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	RetiredBy ActorID    `json:"retired_by,omitempty"`
}

// Status renders the lifecycle state for operators.
func (c AccessCode) Status() string {
	if c.Active {
		return "ACTIVE"
	}
	return "RETIRED"
}

// LedgerRecord is one append-only distribution entry.
type LedgerRecord struct {
	ID             int64     `json:"id"`
	Nickname       string    `json:"nickname"`
	Quantity       string    `json:"quantity"`
	RecordedBy     ActorID   `json:"recorded_by"`
	RecordedByName string    `json:"recorded_by_name"`
	RecordedAt     time.Time `json:"recorded_at"`
}
