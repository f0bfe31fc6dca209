// Package codegen draws random 4-digit access codes that are not yet present
// in the code store.
//
// The presence check is advisory: another caller can insert the same digits
// between Generate and the commit. The store's UNIQUE constraint is the
// authoritative guard and the commit path must re-check.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/roach88/cloister/internal/model"
)

// DefaultMaxAttempts bounds the collision retries for a single Generate call.
const DefaultMaxAttempts = 50

// ErrGenerationExhausted is returned when every attempt collided with an
// existing code.
var ErrGenerationExhausted = errors.New("code generation exhausted")

// Existence reports whether a code has ever been issued.
// Implemented by *store.Store.
type Existence interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// Source yields uniform integers in [0, n).
type Source interface {
	IntN(n int) int
}

// Generator produces store-verified candidate codes.
//
// Thread-safety: Generate is safe for concurrent use.
type Generator struct {
	codes       Existence
	maxAttempts int
	logger      *slog.Logger

	mu  sync.Mutex
	src Source
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAttempts caps collision retries. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithSource replaces the random source, mainly for tests.
func WithSource(src Source) Option {
	return func(g *Generator) {
		g.src = src
	}
}

// WithLogger sets the logger used for collision diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// New creates a Generator that checks candidates against codes.
func New(codes Existence, opts ...Option) *Generator {
	g := &Generator{
		codes:       codes,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		src:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a zero-padded 4-digit code absent from the store.
// Returns ErrGenerationExhausted after maxAttempts collisions.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code := g.draw()
		exists, err := g.codes.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		if !exists {
			return code, nil
		}

		g.logger.Debug("generated code collided, retrying",
			"attempt", attempt,
			"max_attempts", g.maxAttempts,
		)
	}
	return "", fmt.Errorf("generate code after %d attempts: %w", g.maxAttempts, ErrGenerationExhausted)
}

func (g *Generator) draw() string {
	g.mu.Lock()
	n := g.src.IntN(model.CodeSpace)
	g.mu.Unlock()
	return fmt.Sprintf("%0*d", model.CodeLength, n)
}
