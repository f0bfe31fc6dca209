package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/cloister/internal/auth"
	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/session"
	"github.com/roach88/cloister/internal/transport"
)

// CodeStore is the part of the store the code workflows use.
// Implemented by *store.Store.
type CodeStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	GetCode(ctx context.Context, code string) (model.AccessCode, error)
	InsertCode(ctx context.Context, code, owner string, createdBy model.ActorID) (model.AccessCode, error)
	RetireCode(ctx context.Context, code string, retiredBy model.ActorID) (model.AccessCode, error)
}

// LedgerStore appends distribution records. Implemented by *store.Store.
type LedgerStore interface {
	AppendLedger(ctx context.Context, rec model.LedgerRecord) (model.LedgerRecord, error)
}

// CodeGenerator draws a candidate code. Implemented by *codegen.Generator.
type CodeGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// Engine routes inbound updates through the three workflows.
//
// Thread-safety model:
//   - HandleUpdate: safe from any goroutine; all shared state lives in the
//     session store and the persistent store
//   - turns of one actor are expected to arrive serialized (see dispatch);
//     turns of different actors may run concurrently
//
// Every turn re-resolves the acting role and re-reads the session. Confirm
// steps take the session out of the store before committing, so at most one
// of two concurrent presses reaches the store.
type Engine struct {
	messenger transport.Messenger
	authz     auth.Authorizer
	codes     CodeStore
	ledger    LedgerStore
	gen       CodeGenerator
	sessions  *session.Store
	notifier  *Notifier
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithSessions shares a session store with the caller.
func WithSessions(s *session.Store) Option {
	return func(e *Engine) {
		e.sessions = s
	}
}

// WithNotifier sets the audit notifier. Without it broadcasts are disabled.
func WithNotifier(n *Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// New creates an Engine.
func New(
	m transport.Messenger,
	authz auth.Authorizer,
	codes CodeStore,
	ledger LedgerStore,
	gen CodeGenerator,
	opts ...Option,
) *Engine {
	e := &Engine{
		messenger: m,
		authz:     authz,
		codes:     codes,
		ledger:    ledger,
		gen:       gen,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessions == nil {
		e.sessions = session.NewStore()
	}
	if e.notifier == nil {
		e.notifier = NewNotifier(m, 0, WithNotifierLogger(e.logger))
	}
	return e
}

// Sessions exposes the live session store.
func (e *Engine) Sessions() *session.Store {
	return e.sessions
}

// Notifier exposes the audit notifier so callers can drain it.
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// turn carries the update being handled and its scoped logger.
type turn struct {
	upd transport.Update
	log *slog.Logger
}

func (t *turn) actor() model.ActorID {
	return t.upd.Actor.ID
}

// HandleUpdate runs one turn.
//
// The returned error describes how the turn ended when it did not reach its
// happy path: a *WorkflowError for expected outcomes (already reported to
// the operator) or a plain error for a malformed update. It is logged and
// counted here; callers only need it for their own bookkeeping.
func (e *Engine) HandleUpdate(ctx context.Context, upd transport.Update) error {
	start := time.Now()
	t := &turn{
		upd: upd,
		log: e.logger.With(
			"turn", upd.Turn,
			"actor", int64(upd.Actor.ID),
			"kind", upd.Kind.String(),
		),
	}

	var err error
	switch upd.Kind {
	case transport.UpdateCommand:
		err = e.handleCommand(ctx, t)
	case transport.UpdateText:
		err = e.handleText(ctx, t)
	case transport.UpdateAction:
		err = e.handleAction(ctx, t)
	default:
		err = fmt.Errorf("handle update: unknown kind %d", upd.Kind)
	}

	RecordTurnDuration(upd.Kind.String(), time.Since(start).Seconds())
	e.logOutcome(t, err)
	return err
}

func (e *Engine) handleText(ctx context.Context, t *turn) error {
	s, ok := e.sessions.AwaitingText(t.actor(), t.upd.Chat)
	if !ok {
		t.log.Debug("text ignored, no session awaiting input in this chat")
		return nil
	}

	switch s := s.(type) {
	case session.CodeIssue:
		return e.collectOwner(ctx, t, s)
	case session.CodeLookup:
		return e.resolveCode(ctx, t, s)
	case session.LedgerEntry:
		return e.collectLedgerField(ctx, t, s)
	default:
		return fmt.Errorf("handle text: unexpected session %T", s)
	}
}

func (e *Engine) handleAction(ctx context.Context, t *turn) error {
	act, ok := parseAction(t.upd.ActionTag)
	if !ok {
		t.log.Warn("unknown action tag", "tag", t.upd.ActionTag)
		e.answer(ctx, t, msgUnknownAction)
		return nil
	}
	t.log = t.log.With("workflow", string(act.workflow))

	// The presser may differ from the session owner: authorize the presser.
	if !e.permitted(t, act.workflow) {
		return e.deny(ctx, t, act.workflow)
	}
	e.answer(ctx, t, "")

	switch act.workflow {
	case model.WorkflowCodeIssue:
		if act.verb == verbConfirm {
			return e.confirmCodeIssue(ctx, t)
		}
		return e.cancelCodeIssue(ctx, t)
	case model.WorkflowCodeLookup:
		switch act.verb {
		case verbRetire:
			return e.askRetire(ctx, t, act.code)
		case verbRetireConfirm:
			return e.confirmRetire(ctx, t, act.code)
		default:
			return e.closeLookup(ctx, t)
		}
	default:
		if act.verb == verbConfirm {
			return e.confirmLedgerEntry(ctx, t)
		}
		return e.cancelLedgerEntry(ctx, t)
	}
}

// permitted resolves the actor's role now and checks it against wf.
func (e *Engine) permitted(t *turn, wf model.Workflow) bool {
	role := e.authz.RoleOf(t.actor())
	switch wf {
	case model.WorkflowCodeIssue, model.WorkflowCodeLookup:
		return role == model.RoleHermit
	default:
		return role.Recognized()
	}
}

// deny reports the standard refusal. Action presses get a toast so the
// owner's prompt stays intact.
func (e *Engine) deny(ctx context.Context, t *turn, wf model.Workflow) error {
	recordUnauthorized(string(wf))
	if t.upd.Kind == transport.UpdateAction {
		e.answer(ctx, t, msgNotAuthorized)
	} else {
		e.send(ctx, t, msgNotAuthorized, nil)
	}
	return newError(KindUnauthorized, wf, fmt.Sprintf("actor %d denied", t.actor()), nil)
}

// send posts a new message to the turn's chat.
func (e *Engine) send(ctx context.Context, t *turn, text string, kb *transport.Keyboard) (model.MessageRef, bool) {
	ref, err := e.messenger.Send(ctx, t.upd.Chat, text, kb)
	if err != nil {
		recordTransportError("send")
		t.log.Warn("send failed", "chat", int64(t.upd.Chat), "error", err)
		return model.MessageRef{}, false
	}
	return ref, true
}

// rewrite edits ref in place, falling back to a fresh message when there is
// no handle or the platform refuses the edit. It returns the message now
// showing text.
func (e *Engine) rewrite(ctx context.Context, t *turn, ref model.MessageRef, text string, kb *transport.Keyboard) (model.MessageRef, bool) {
	if !ref.IsZero() {
		err := e.messenger.Edit(ctx, ref, text, kb)
		if err == nil {
			return ref, true
		}
		recordTransportError("edit")
		t.log.Warn("edit failed, sending a new message", "message", ref.MessageID, "error", err)
	}
	return e.send(ctx, t, text, kb)
}

// remove deletes a message. Failures are logged and swallowed.
func (e *Engine) remove(ctx context.Context, t *turn, ref model.MessageRef) {
	if ref.IsZero() {
		return
	}
	if err := e.messenger.Delete(ctx, ref); err != nil {
		recordTransportError("delete")
		t.log.Warn("delete failed", "message", ref.MessageID, "error", err)
	}
}

// answer acknowledges the pressed action.
func (e *Engine) answer(ctx context.Context, t *turn, text string) {
	if t.upd.ActionID == "" {
		return
	}
	if err := e.messenger.AnswerAction(ctx, t.upd.ActionID, text); err != nil {
		recordTransportError("answer")
		t.log.Warn("answer action failed", "error", err)
	}
}

func (e *Engine) succeed(t *turn, wf model.Workflow, outcome string) error {
	recordOutcome(string(wf), outcome)
	t.log.Info("workflow step", "outcome", outcome)
	return nil
}

func (e *Engine) logOutcome(t *turn, err error) {
	if err == nil {
		return
	}
	var we *WorkflowError
	if !errors.As(err, &we) {
		t.log.Error("turn failed", "error", err)
		return
	}
	wf := string(we.Workflow)
	if wf == "" {
		wf = "none"
	}
	recordOutcome(wf, outcomeOf(we.Kind))

	attrs := []any{"outcome", string(we.Kind), "error", err}
	switch we.Kind {
	case KindUnauthorized, KindAlreadyRetired, KindNotFound:
		t.log.Info("workflow ended", attrs...)
	case KindInternal:
		t.log.Error("workflow failed", attrs...)
	default:
		t.log.Warn("workflow ended", attrs...)
	}
}

func outcomeOf(kind ErrorKind) string {
	switch kind {
	case KindUnauthorized:
		return OutcomeUnauthorized
	case KindSessionDesynchronized:
		return OutcomeDesynchronized
	case KindUniquenessConflict:
		return OutcomeConflict
	case KindAlreadyRetired:
		return OutcomeAlreadyRetired
	case KindNotFound:
		return OutcomeNotFound
	case KindGenerationExhausted:
		return OutcomeExhausted
	case KindTransportDegraded:
		return OutcomeDegraded
	default:
		return OutcomeInternal
	}
}
