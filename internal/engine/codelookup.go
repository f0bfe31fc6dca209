package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/session"
	"github.com/roach88/cloister/internal/store"
)

// CodeLookup: AwaitingCode -> {Resolved(active) -> AwaitingRetireConfirm ->
// {Retired | Closed} | Resolved(inactive) | NotFound}. One message is
// rewritten from the prompt to the final outcome.

func (e *Engine) startCodeLookup(ctx context.Context, t *turn) error {
	const wf = model.WorkflowCodeLookup
	t.log = t.log.With("workflow", string(wf))

	if !e.permitted(t, wf) {
		return e.deny(ctx, t, wf)
	}

	prompt, ok := e.send(ctx, t, msgLookupPrompt, nil)
	if !ok {
		return newError(KindTransportDegraded, wf, "prompt not delivered", nil)
	}

	s := session.CodeLookup{State: session.LookupAwaitingCode}
	s.Cursor.Replace(prompt)
	e.openSession(ctx, t, s)
	return e.succeed(t, wf, OutcomeStarted)
}

func (e *Engine) resolveCode(ctx context.Context, t *turn, s session.CodeLookup) error {
	const wf = model.WorkflowCodeLookup
	t.log = t.log.With("workflow", string(wf))

	if !e.permitted(t, wf) {
		e.sessions.Clear(t.actor(), wf)
		return e.deny(ctx, t, wf)
	}

	// Codes are sensitive: drop the operator's copy first.
	e.remove(ctx, t, t.upd.Message)

	code := model.NormalizeText(t.upd.Text)
	prompt, _ := s.Cursor.Ref()

	var (
		ac  model.AccessCode
		err error
	)
	if model.ValidCode(code) {
		ac, err = e.codes.GetCode(ctx, code)
	} else {
		err = store.ErrNotFound
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		e.sessions.Clear(t.actor(), wf)
		e.rewrite(ctx, t, prompt, lookupNotFoundText(code), closeKeyboard())
		return newError(KindNotFound, wf, fmt.Sprintf("code %q", code), err)
	case err != nil:
		e.sessions.Clear(t.actor(), wf)
		e.rewrite(ctx, t, prompt, msgInternal, nil)
		return newError(KindInternal, wf, "get code", err)
	case !ac.Active:
		e.sessions.Clear(t.actor(), wf)
		e.rewrite(ctx, t, prompt, lookupDetailText(ac), closeKeyboard())
		return e.succeed(t, wf, OutcomeResolved)
	}

	ref, ok := e.rewrite(ctx, t, prompt, lookupDetailText(ac), lookupActiveKeyboard(ac.Code))
	if !ok {
		e.sessions.Clear(t.actor(), wf)
		return newError(KindTransportDegraded, wf, "detail not delivered", nil)
	}
	s.Code = ac.Code
	s.State = session.LookupResolved
	s.Cursor.Replace(ref)
	e.sessions.Replace(t.actor(), s)
	return e.succeed(t, wf, OutcomeResolved)
}

// askRetire swaps the detail view for an explicit yes/no naming the code.
func (e *Engine) askRetire(ctx context.Context, t *turn, code string) error {
	const wf = model.WorkflowCodeLookup

	e.rewrite(ctx, t, t.upd.Message, retireConfirmText(code), retireConfirmKeyboard(code))
	if owner, s, ok := session.FindByPrompt[session.CodeLookup](e.sessions, t.upd.Message); ok {
		s.State = session.LookupAwaitingRetireConfirm
		e.sessions.Replace(owner, s)
	}
	return e.succeed(t, wf, OutcomeStaged)
}

func (e *Engine) confirmRetire(ctx context.Context, t *turn, code string) error {
	const wf = model.WorkflowCodeLookup
	t.log = t.log.With("code", code)

	// The tag names the code; a staged code that disagrees means the prompt
	// belongs to another lookup.
	if owner, s, ok := session.TakeByPrompt[session.CodeLookup](e.sessions, t.upd.Message); ok && s.Code != "" && s.Code != code {
		e.rewrite(ctx, t, t.upd.Message, lookupDesyncText(s.Code), nil)
		return newError(KindSessionDesynchronized, wf,
			fmt.Sprintf("tag code %s, staged %s by actor %d", code, s.Code, owner), nil)
	}

	ac, err := e.codes.RetireCode(ctx, code, t.actor())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyRetired):
			e.rewrite(ctx, t, t.upd.Message, notActiveText(code), nil)
			return newError(KindAlreadyRetired, wf, fmt.Sprintf("code %s", code), err)
		case errors.Is(err, store.ErrNotFound):
			e.rewrite(ctx, t, t.upd.Message, notActiveText(code), nil)
			return newError(KindNotFound, wf, fmt.Sprintf("code %s", code), err)
		default:
			e.rewrite(ctx, t, t.upd.Message, msgInternal, nil)
			return newError(KindInternal, wf, "retire code", err)
		}
	}

	e.rewrite(ctx, t, t.upd.Message, retiredText(ac), nil)
	e.notifier.Notify(ctx, retireAuditText(ac, t.upd.Actor))
	t.log = t.log.With("code_id", ac.ID)
	return e.succeed(t, wf, OutcomeCommitted)
}

func (e *Engine) closeLookup(ctx context.Context, t *turn) error {
	const wf = model.WorkflowCodeLookup

	session.TakeByPrompt[session.CodeLookup](e.sessions, t.upd.Message)
	e.rewrite(ctx, t, t.upd.Message, msgClosed, nil)
	return e.succeed(t, wf, OutcomeClosed)
}
