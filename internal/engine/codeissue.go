package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/cloister/internal/codegen"
	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/session"
	"github.com/roach88/cloister/internal/store"
)

// CodeIssue: AwaitingNickname -> Staged -> {Committed | Cancelled}.

func (e *Engine) startCodeIssue(ctx context.Context, t *turn) error {
	const wf = model.WorkflowCodeIssue
	t.log = t.log.With("workflow", string(wf))

	if !e.permitted(t, wf) {
		return e.deny(ctx, t, wf)
	}

	code, err := e.gen.Generate(ctx)
	if err != nil {
		if errors.Is(err, codegen.ErrGenerationExhausted) {
			e.send(ctx, t, msgIssueExhausted, nil)
			return newError(KindGenerationExhausted, wf, "no free code", err)
		}
		e.send(ctx, t, msgInternal, nil)
		return newError(KindInternal, wf, "generate code", err)
	}

	prompt, ok := e.send(ctx, t, issuePromptText(code), nil)
	if !ok {
		return newError(KindTransportDegraded, wf, "prompt not delivered", nil)
	}

	s := session.CodeIssue{
		State:     session.IssueAwaitingNickname,
		Code:      code,
		Transient: []model.MessageRef{t.upd.Message, prompt},
	}
	s.Cursor.Replace(prompt)
	e.openSession(ctx, t, s)

	t.log.Debug("code drawn", "code", code)
	return e.succeed(t, wf, OutcomeStarted)
}

func (e *Engine) collectOwner(ctx context.Context, t *turn, s session.CodeIssue) error {
	const wf = model.WorkflowCodeIssue
	t.log = t.log.With("workflow", string(wf))

	if !e.permitted(t, wf) {
		e.sessions.Clear(t.actor(), wf)
		return e.deny(ctx, t, wf)
	}

	if s.Code == "" {
		e.sessions.Clear(t.actor(), wf)
		e.send(ctx, t, msgIssueLost, nil)
		return newError(KindSessionDesynchronized, wf, "no code staged", nil)
	}

	owner := model.NormalizeText(t.upd.Text)
	if owner == "" {
		e.remove(ctx, t, t.upd.Message)
		prompt, _ := s.Cursor.Ref()
		if ref, ok := e.rewrite(ctx, t, prompt, issueRepromptText(s.Code), nil); ok && ref != prompt {
			s.Cursor.Replace(ref)
			s.Transient = append(s.Transient, ref)
			e.sessions.Replace(t.actor(), s)
		}
		return nil
	}

	for _, m := range append(s.Transient, t.upd.Message) {
		e.remove(ctx, t, m)
	}

	summary, ok := e.send(ctx, t, issueSummaryText(s.Code, owner), issueSummaryKeyboard())
	if !ok {
		e.sessions.Clear(t.actor(), wf)
		return newError(KindTransportDegraded, wf, "summary not delivered", nil)
	}

	s.Owner = owner
	s.State = session.IssueStaged
	s.Transient = nil
	s.Cursor.Replace(summary)
	if !e.sessions.Replace(t.actor(), s) {
		// Cancelled while this turn ran: the summary is orphaned.
		e.rewrite(ctx, t, summary, msgClosed, nil)
		return nil
	}
	return e.succeed(t, wf, OutcomeStaged)
}

func (e *Engine) confirmCodeIssue(ctx context.Context, t *turn) error {
	const wf = model.WorkflowCodeIssue

	owner, s, ok := session.TakeByPrompt[session.CodeIssue](e.sessions, t.upd.Message)
	if !ok || s.Code == "" || s.Owner == "" {
		e.rewrite(ctx, t, t.upd.Message, msgIssueMissing, nil)
		return newError(KindSessionDesynchronized, wf, "nothing staged for this prompt", nil)
	}
	t.log = t.log.With("session_owner", int64(owner), "code", s.Code)

	// The draw may have raced another issuance since the prompt was sent.
	exists, err := e.codes.CodeExists(ctx, s.Code)
	if err != nil {
		e.rewrite(ctx, t, t.upd.Message, msgInternal, nil)
		return newError(KindInternal, wf, "check code", err)
	}
	if exists {
		e.rewrite(ctx, t, t.upd.Message, issueConflictText(s.Code), nil)
		return newError(KindUniquenessConflict, wf, fmt.Sprintf("code %s exists", s.Code), store.ErrCodeConflict)
	}

	ac, err := e.codes.InsertCode(ctx, s.Code, s.Owner, t.actor())
	if err != nil {
		if errors.Is(err, store.ErrCodeConflict) {
			e.rewrite(ctx, t, t.upd.Message, issueConflictText(s.Code), nil)
			return newError(KindUniquenessConflict, wf, fmt.Sprintf("code %s exists", s.Code), err)
		}
		e.rewrite(ctx, t, t.upd.Message, msgInternal, nil)
		return newError(KindInternal, wf, "insert code", err)
	}

	e.rewrite(ctx, t, t.upd.Message, issueCommittedText(ac), nil)
	e.notifier.Notify(ctx, issueAuditText(ac, t.upd.Actor))
	t.log = t.log.With("code_id", ac.ID)
	return e.succeed(t, wf, OutcomeCommitted)
}

func (e *Engine) cancelCodeIssue(ctx context.Context, t *turn) error {
	const wf = model.WorkflowCodeIssue

	session.TakeByPrompt[session.CodeIssue](e.sessions, t.upd.Message)
	e.rewrite(ctx, t, t.upd.Message, msgIssueCancelled, nil)
	return e.succeed(t, wf, OutcomeCancelled)
}
