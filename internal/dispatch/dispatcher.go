// Package dispatch feeds inbound updates to the workflow engine.
//
// Updates are queued in arrival order and fanned out to one lane per actor.
// A lane runs its actor's turns one at a time in arrival order; different
// actors proceed concurrently. Every turn gets a correlation token and a
// trace span.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/transport"
)

const tracerName = "github.com/roach88/cloister/internal/dispatch"

// DefaultMaxConcurrentTurns bounds the turns Run executes at once.
const DefaultMaxConcurrentTurns = 64

// Handler runs one turn. Implemented by *engine.Engine.
type Handler interface {
	HandleUpdate(ctx context.Context, upd transport.Update) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, upd transport.Update) error

// HandleUpdate calls f(ctx, upd).
func (f HandlerFunc) HandleUpdate(ctx context.Context, upd transport.Update) error {
	return f(ctx, upd)
}

// Dispatcher owns the update queue and the turn goroutines.
//
// Thread-safety model:
//   - Enqueue(), Dispatch(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Dispatcher struct {
	handler Handler
	queue   *updateQueue
	tokens  TurnTokenGenerator
	tracer  trace.Tracer
	logger  *slog.Logger
	locks   *actorLocks
	slots   *semaphore.Weighted

	lanesMu  sync.Mutex
	lanes    map[model.ActorID]*lane
	inflight sync.WaitGroup
}

// lane holds the updates of one actor waiting behind its running turn.
type lane struct {
	pending []transport.Update
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTokens overrides the turn token generator. Defaults to UUIDv7.
func WithTokens(g TurnTokenGenerator) Option {
	return func(d *Dispatcher) {
		d.tokens = g
	}
}

// WithTracerProvider sets where turn spans go. Defaults to the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// WithMaxConcurrentTurns bounds how many lanes Run executes at once.
// Non-positive values keep the default.
func WithMaxConcurrentTurns(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates a Dispatcher for h.
func New(h Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handler: h,
		queue:   newUpdateQueue(),
		tokens:  UUIDv7Generator{},
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
		locks:   newActorLocks(),
		slots:   semaphore.NewWeighted(DefaultMaxConcurrentTurns),
		lanes:   make(map[model.ActorID]*lane),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue submits an update for processing by the Run loop.
// Returns false once the dispatcher has stopped.
func (d *Dispatcher) Enqueue(upd transport.Update) bool {
	return d.queue.Enqueue(upd)
}

// Run hands queued updates to turn goroutines until ctx is cancelled or
// Stop is called, then waits for in-flight turns to finish.
//
// Turns run on a context detached from ctx so a shutdown never interrupts
// a commit halfway through.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting")
	turnCtx := context.WithoutCancel(ctx)
	defer d.inflight.Wait()

	for {
		if upd, ok := d.queue.TryDequeue(); ok {
			d.schedule(turnCtx, upd)
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping: context cancelled")
			d.queue.Close()
			return ctx.Err()

		case <-d.queue.Wait():
			// The signal channel closes with the queue.
			if d.queue.closedAndEmpty() {
				d.logger.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

// schedule appends upd to its actor's lane, starting a lane goroutine when
// the actor has none. Lanes preserve per-actor arrival order.
func (d *Dispatcher) schedule(ctx context.Context, upd transport.Update) {
	id := upd.Actor.ID

	d.lanesMu.Lock()
	if ln, ok := d.lanes[id]; ok {
		ln.pending = append(ln.pending, upd)
		d.lanesMu.Unlock()
		return
	}
	ln := &lane{}
	d.lanes[id] = ln
	d.lanesMu.Unlock()

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		next := upd
		for {
			if err := d.slots.Acquire(ctx, 1); err != nil {
				d.logger.Error("turn slot unavailable", "turn", next.Turn, "error", err)
			} else {
				d.Dispatch(ctx, next)
				d.slots.Release(1)
			}

			d.lanesMu.Lock()
			if len(ln.pending) == 0 {
				delete(d.lanes, id)
				d.lanesMu.Unlock()
				return
			}
			next = ln.pending[0]
			ln.pending = ln.pending[1:]
			d.lanesMu.Unlock()
		}
	}()
}

// Stop closes the queue. Run returns once in-flight turns are done.
func (d *Dispatcher) Stop() {
	d.queue.Close()
}

// Dispatch runs one turn synchronously: it assigns the turn token, waits
// for any concurrent turn of the same actor, and calls the handler inside
// a span. Callers bypassing Run (webhook replays, the scenario harness) get
// the same per-actor exclusion.
func (d *Dispatcher) Dispatch(ctx context.Context, upd transport.Update) error {
	if upd.Turn == "" {
		upd.Turn = d.tokens.Generate()
	}

	unlock := d.locks.lock(upd.Actor.ID)
	defer unlock()

	ctx, span := d.tracer.Start(ctx, "turn."+upd.Kind.String(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("cloister.turn", upd.Turn),
			attribute.Int64("cloister.actor", int64(upd.Actor.ID)),
			attribute.Int64("cloister.chat", int64(upd.Chat)),
			attribute.String("cloister.command", upd.Command),
			attribute.String("cloister.action", upd.ActionTag),
		),
	)
	defer span.End()

	start := time.Now()
	err := d.handler.HandleUpdate(ctx, upd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	d.logger.Debug("turn done",
		"turn", upd.Turn,
		"actor", int64(upd.Actor.ID),
		"duration", time.Since(start),
	)
	return err
}

// actorLocks hands out one mutex per actor and forgets it when unused.
type actorLocks struct {
	mu    sync.Mutex
	locks map[model.ActorID]*actorLock
}

type actorLock struct {
	mu   sync.Mutex
	refs int
}

func newActorLocks() *actorLocks {
	return &actorLocks{locks: make(map[model.ActorID]*actorLock)}
}

// lock blocks until the actor's lock is held and returns its release.
func (l *actorLocks) lock(id model.ActorID) func() {
	l.mu.Lock()
	al, ok := l.locks[id]
	if !ok {
		al = &actorLock{}
		l.locks[id] = al
	}
	al.refs++
	l.mu.Unlock()

	al.mu.Lock()
	return func() {
		al.mu.Unlock()
		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *actorLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
