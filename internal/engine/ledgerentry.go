package engine

import (
	"context"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/session"
)

// LedgerEntry: AwaitingNickname -> AwaitingQuantity -> AwaitingConfirm ->
// {Committed | Cancelled}. Open to every recognized role.

func (e *Engine) startLedgerEntry(ctx context.Context, t *turn) error {
	const wf = model.WorkflowLedgerEntry
	t.log = t.log.With("workflow", string(wf))

	if !e.permitted(t, wf) {
		return e.deny(ctx, t, wf)
	}

	prompt, ok := e.send(ctx, t, msgLedgerAskNickname, nil)
	if !ok {
		return newError(KindTransportDegraded, wf, "prompt not delivered", nil)
	}

	s := session.LedgerEntry{State: session.LedgerAwaitingNickname, Actor: t.actor()}
	s.Cursor.Replace(prompt)
	e.openSession(ctx, t, s)
	return e.succeed(t, wf, OutcomeStarted)
}

func (e *Engine) collectLedgerField(ctx context.Context, t *turn, s session.LedgerEntry) error {
	const wf = model.WorkflowLedgerEntry
	t.log = t.log.With("workflow", string(wf))

	if !e.permitted(t, wf) {
		e.sessions.Clear(t.actor(), wf)
		return e.deny(ctx, t, wf)
	}

	value := model.NormalizeText(t.upd.Text)
	e.remove(ctx, t, t.upd.Message)
	if value == "" {
		return nil
	}

	var (
		text string
		kb   = ledgerSummaryKeyboard()
	)
	switch s.State {
	case session.LedgerAwaitingNickname:
		s.Nickname = value
		s.State = session.LedgerAwaitingQuantity
		text, kb = msgLedgerAskQuantity, nil
	default:
		s.Quantity = value
		s.State = session.LedgerAwaitingConfirm
		text = ledgerSummaryText(s.Nickname, s.Quantity)
	}

	prompt, _ := s.Cursor.Ref()
	ref, ok := e.rewrite(ctx, t, prompt, text, kb)
	if !ok {
		e.sessions.Clear(t.actor(), wf)
		return newError(KindTransportDegraded, wf, "prompt not delivered", nil)
	}
	s.Cursor.Replace(ref)
	e.sessions.Replace(t.actor(), s)

	if s.State == session.LedgerAwaitingConfirm {
		return e.succeed(t, wf, OutcomeStaged)
	}
	return nil
}

func (e *Engine) confirmLedgerEntry(ctx context.Context, t *turn) error {
	const wf = model.WorkflowLedgerEntry

	owner, s, ok := session.TakeByPrompt[session.LedgerEntry](e.sessions, t.upd.Message)
	if !ok || s.Nickname == "" || s.Quantity == "" {
		e.rewrite(ctx, t, t.upd.Message, msgLedgerMissing, nil)
		return newError(KindSessionDesynchronized, wf, "nothing staged for this prompt", nil)
	}
	t.log = t.log.With("session_owner", int64(owner))

	rec, err := e.ledger.AppendLedger(ctx, model.LedgerRecord{
		Nickname:       s.Nickname,
		Quantity:       s.Quantity,
		RecordedBy:     t.actor(),
		RecordedByName: t.upd.Actor.DisplayName,
	})
	if err != nil {
		e.rewrite(ctx, t, t.upd.Message, msgInternal, nil)
		return newError(KindInternal, wf, "append ledger", err)
	}

	e.rewrite(ctx, t, t.upd.Message, msgLedgerRecorded, nil)
	e.notifier.Notify(ctx, ledgerAuditText(rec))
	t.log = t.log.With("record_id", rec.ID)
	return e.succeed(t, wf, OutcomeCommitted)
}

func (e *Engine) cancelLedgerEntry(ctx context.Context, t *turn) error {
	const wf = model.WorkflowLedgerEntry

	session.TakeByPrompt[session.LedgerEntry](e.sessions, t.upd.Message)
	e.rewrite(ctx, t, t.upd.Message, msgLedgerCancelled, nil)
	return e.succeed(t, wf, OutcomeCancelled)
}
