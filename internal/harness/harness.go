package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/cloister/internal/auth"
	"github.com/roach88/cloister/internal/codegen"
	"github.com/roach88/cloister/internal/dispatch"
	"github.com/roach88/cloister/internal/engine"
	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/store"
	"github.com/roach88/cloister/internal/testutil"
	"github.com/roach88/cloister/internal/transport"
)

// ErrInjected is the error returned by transport calls a step asked to fail.
var ErrInjected = errors.New("transport unavailable")

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every step met its expectation and every assertion
	// held.
	Pass bool

	// Errors lists the failed expectations and assertions.
	Errors []string

	// Turns records each step and the transport calls it caused.
	Turns []Turn
}

// Turn is one played step.
type Turn struct {
	Token   string
	Actor   model.Actor
	Chat    model.ChatID
	Step    Step
	Target  model.MessageRef
	Calls   []testutil.Call
	Outcome string
}

// world holds everything a scenario runs against.
type world struct {
	store      *store.Store
	messenger  *testutil.FakeMessenger
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	actors     map[model.ActorID]model.Actor
	auditChat  model.ChatID
	turns      *testutil.TurnSequence
	actions    int
}

// Run executes a scenario against a fresh in-memory world.
//
// A returned error means the scenario could not be played at all (bad
// setup, a press with nothing to press). Failed expectations are reported in
// Result.Errors instead.
func Run(sc *Scenario) (*Result, error) {
	w, err := newWorld(sc)
	if err != nil {
		return nil, err
	}
	defer w.store.Close()

	ctx := context.Background()
	if err := w.seed(ctx, sc.Setup); err != nil {
		return nil, err
	}

	result := &Result{Pass: true}
	for i, step := range sc.Steps {
		turn, err := w.play(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Turns = append(result.Turns, turn)

		if step.Expect != "" && step.Expect != turn.Outcome {
			result.Pass = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("step %d (%s): expected outcome %s, got %s", i+1, turn.Token, step.Expect, turn.Outcome))
		}
	}

	for i, a := range sc.Assertions {
		if err := w.check(ctx, a); err != nil {
			result.Pass = false
			result.Errors = append(result.Errors, fmt.Sprintf("assertion %d (%s): %v", i+1, a.Type, err))
		}
	}
	return result, nil
}

func newWorld(sc *Scenario) (*world, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:", store.WithClock(testutil.NewStepClock(time.Second).Now))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	actors := make(map[model.ActorID]model.Actor, len(sc.Actors))
	var hermits, initiates []model.ActorID
	for _, a := range sc.Actors {
		id := model.ActorID(a.ID)
		actors[id] = model.Actor{ID: id, DisplayName: a.Name}
		switch roles[a.Role] {
		case model.RoleHermit:
			hermits = append(hermits, id)
		case model.RoleInitiate:
			initiates = append(initiates, id)
		}
	}
	authz, err := auth.NewStatic(hermits, initiates)
	if err != nil {
		st.Close()
		return nil, err
	}

	fm := testutil.NewFakeMessenger()
	auditChat := model.ChatID(sc.AuditChat)
	gen := codegen.New(st,
		codegen.WithSource(testutil.NewCodeSource(sc.Draws...)),
		codegen.WithLogger(logger),
	)
	notifier := engine.NewNotifier(fm, auditChat, engine.WithNotifierLogger(logger))
	eng := engine.New(fm, authz, st, st, gen,
		engine.WithLogger(logger),
		engine.WithNotifier(notifier),
	)

	return &world{
		store:      st,
		messenger:  fm,
		engine:     eng,
		dispatcher: dispatch.New(eng, dispatch.WithLogger(logger)),
		actors:     actors,
		auditChat:  auditChat,
		turns:      testutil.NewTurnSequence("turn"),
	}, nil
}

// seed inserts the setup codes as actor 0.
func (w *world) seed(ctx context.Context, setup Setup) error {
	for _, c := range setup.Codes {
		if _, err := w.store.InsertCode(ctx, c.Code, c.Owner, 0); err != nil {
			return fmt.Errorf("seed code %s: %w", c.Code, err)
		}
		if c.Retired {
			if _, err := w.store.RetireCode(ctx, c.Code, 0); err != nil {
				return fmt.Errorf("seed retire %s: %w", c.Code, err)
			}
		}
	}
	return nil
}

// play turns a step into an update, dispatches it and collects the calls it
// caused, audit broadcasts included.
func (w *world) play(ctx context.Context, step Step) (Turn, error) {
	actor := w.actors[model.ActorID(step.Actor)]
	chat := step.chat()
	upd := transport.Update{
		Actor: actor,
		Chat:  chat,
		Turn:  w.turns.Generate(),
	}

	switch {
	case step.Command != "":
		upd.Kind = transport.UpdateCommand
		upd.Command = step.Command
		upd.Text = "/" + step.Command
		upd.Message = w.messenger.Incoming(chat, upd.Text)
	case step.Text != nil:
		upd.Kind = transport.UpdateText
		upd.Text = *step.Text
		upd.Message = w.messenger.Incoming(chat, upd.Text)
	default:
		target, err := w.target(chat, step)
		if err != nil {
			return Turn{}, err
		}
		w.actions++
		upd.Kind = transport.UpdateAction
		upd.ActionTag = step.Press
		upd.ActionID = fmt.Sprintf("cb-%d", w.actions)
		upd.Message = target
	}

	for _, op := range step.Fail {
		w.messenger.FailNext(testutil.Op(op), 0, ErrInjected)
	}

	before := len(w.messenger.Calls())
	handled := w.dispatch(ctx, upd)
	w.engine.Notifier().Wait()

	outcome := OutcomeOK
	if handled != nil {
		outcome = string(engine.KindOf(handled))
	}
	return Turn{
		Token:   upd.Turn,
		Actor:   actor,
		Chat:    chat,
		Step:    step,
		Target:  upd.Message,
		Calls:   w.messenger.Calls()[before:],
		Outcome: outcome,
	}, nil
}

// dispatch runs the turn and turns a panic into an internal error.
func (w *world) dispatch(ctx context.Context, upd transport.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn panicked: %v", r)
		}
	}()
	return w.dispatcher.Dispatch(ctx, upd)
}

// target resolves the message a press lands on.
func (w *world) target(chat model.ChatID, step Step) (model.MessageRef, error) {
	if step.Message != 0 {
		return model.MessageRef{Chat: chat, MessageID: step.Message}, nil
	}
	msgs := w.messenger.Chat(chat)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.FromBot && slices.Contains(m.Keyboard.Tags(), step.Press) {
			return m.Ref, nil
		}
	}
	return model.MessageRef{}, fmt.Errorf("no message in chat %d offers %q", chat, step.Press)
}
