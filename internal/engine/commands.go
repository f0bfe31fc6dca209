package engine

import (
	"context"

	"github.com/roach88/cloister/internal/session"
)

// Command names, without the leading slash.
const (
	CommandStart     = "start"
	CommandHelp      = "help"
	CommandNewCode   = "newcode"
	CommandCheckCode = "checkcode"
	CommandLedger    = "ledger"
	CommandCancel    = "cancel"
)

// CommandInfo describes a command for the platform's command menu.
type CommandInfo struct {
	Name        string
	Description string
}

// Commands lists every command in menu order.
var Commands = []CommandInfo{
	{CommandNewCode, "Issue a new access code"},
	{CommandCheckCode, "Check or retire an access code"},
	{CommandLedger, "Record a food distribution"},
	{CommandCancel, "Abandon the current operation"},
	{CommandHelp, "Show the commands you can use"},
}

func (e *Engine) handleCommand(ctx context.Context, t *turn) error {
	switch t.upd.Command {
	case CommandNewCode:
		return e.startCodeIssue(ctx, t)
	case CommandCheckCode:
		return e.startCodeLookup(ctx, t)
	case CommandLedger:
		return e.startLedgerEntry(ctx, t)
	case CommandStart, CommandHelp:
		return e.handleStart(ctx, t)
	case CommandCancel:
		return e.handleCancel(ctx, t)
	default:
		t.log.Debug("unknown command ignored", "command", t.upd.Command)
		return nil
	}
}

// openSession registers s as the actor's session in the turn's chat. A
// dialogue of the same workflow still open is closed the way /cancel
// closes it.
func (e *Engine) openSession(ctx context.Context, t *turn, s session.Session) {
	prev, replaced := e.sessions.Start(t.actor(), t.upd.Chat, s)
	if !replaced {
		return
	}
	t.log.Debug("open session superseded", "state", string(prev.Current()))
	e.closeSession(ctx, t, prev)
}

// closeSession rewrites the session's prompt to the closed notice and
// deletes the messages it collected along the way.
func (e *Engine) closeSession(ctx context.Context, t *turn, s session.Session) {
	cur, held := s.Prompt().Ref()
	if held {
		e.rewrite(ctx, t, cur, msgClosed, nil)
	}
	if issue, ok := s.(session.CodeIssue); ok {
		for _, m := range issue.Transient {
			if !held || m != cur {
				e.remove(ctx, t, m)
			}
		}
	}
}

// handleStart lists the commands the actor's role allows.
func (e *Engine) handleStart(ctx context.Context, t *turn) error {
	role := e.authz.RoleOf(t.actor())
	e.send(ctx, t, startText(role), nil)
	if !role.Recognized() {
		recordUnauthorized("start")
		return newError(KindUnauthorized, "", "start by unknown actor", nil)
	}
	return nil
}

// handleCancel ends every live session of the actor. The store is never
// touched.
func (e *Engine) handleCancel(ctx context.Context, t *turn) error {
	removed := e.sessions.ClearActor(t.actor())
	if len(removed) == 0 {
		e.send(ctx, t, msgNothingToStop, nil)
		return nil
	}
	for _, s := range removed {
		e.closeSession(ctx, t, s)
		recordOutcome(string(s.Workflow()), OutcomeCancelled)
	}
	e.remove(ctx, t, t.upd.Message)
	t.log.Info("sessions cancelled", "count", len(removed))
	return nil
}
