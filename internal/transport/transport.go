// Package transport defines the messaging capabilities the workflow engine
// relies on and the platform-neutral shape of inbound updates.
//
// Every capability is best effort: the platform can refuse to edit or
// delete a message and callers are expected to log and carry on.
package transport

import (
	"context"

	"github.com/roach88/cloister/internal/model"
)

// Messenger is the outbound side of a messaging platform.
type Messenger interface {
	// Send posts a new message, optionally with inline actions.
	Send(ctx context.Context, chat model.ChatID, text string, kb *Keyboard) (model.MessageRef, error)
	// Edit rewrites a message in place. A nil keyboard removes its actions.
	Edit(ctx context.Context, ref model.MessageRef, text string, kb *Keyboard) error
	// Delete removes a message.
	Delete(ctx context.Context, ref model.MessageRef) error
	// AnswerAction acknowledges an action press. A non-empty text is shown
	// to the presser only.
	AnswerAction(ctx context.Context, actionID string, text string) error
}

// Button is an inline action. Tag travels back in the resulting Update.
type Button struct {
	Label string `json:"label" yaml:"label"`
	Tag   string `json:"tag" yaml:"tag"`
}

// Keyboard is a grid of inline actions attached to a message.
type Keyboard struct {
	Rows [][]Button `json:"rows" yaml:"rows"`
}

// NewKeyboard builds a keyboard from rows of buttons.
func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Row groups buttons shown side by side.
func Row(buttons ...Button) []Button {
	return buttons
}

// Tags returns every button tag in row order.
func (k *Keyboard) Tags() []string {
	if k == nil {
		return nil
	}
	var tags []string
	for _, row := range k.Rows {
		for _, b := range row {
			tags = append(tags, b.Tag)
		}
	}
	return tags
}

// UpdateKind distinguishes inbound update shapes.
type UpdateKind int

const (
	// UpdateCommand is a slash command such as /newcode.
	UpdateCommand UpdateKind = iota + 1
	// UpdateText is a plain text message.
	UpdateText
	// UpdateAction is a press on an inline button.
	UpdateAction
)

// String returns the lower-case name used in logs and span names.
func (k UpdateKind) String() string {
	switch k {
	case UpdateCommand:
		return "command"
	case UpdateText:
		return "text"
	case UpdateAction:
		return "action"
	default:
		return "unknown"
	}
}

// Update is one inbound event from the platform.
type Update struct {
	Kind  UpdateKind
	Actor model.Actor
	Chat  model.ChatID
	// Message is the actor's own message for commands and text, and the
	// message carrying the pressed button for actions.
	Message model.MessageRef
	Text    string
	// Command is the command name without the leading slash.
	Command   string
	ActionID  string
	ActionTag string
	// Turn is the correlation token assigned by the dispatcher.
	Turn string
}
