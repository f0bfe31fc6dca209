package testutil

import (
	"fmt"
	"sync"
)

// TurnSequence generates predictable turn tokens: prefix-1, prefix-2, ...
//
// Golden transcripts rely on it so the same scenario always logs the same
// tokens. Implements dispatch.TurnTokenGenerator.
//
// Thread-safety: TurnSequence is safe for concurrent use via internal mutex.
type TurnSequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewTurnSequence creates a token sequence. An empty prefix becomes "turn".
func NewTurnSequence(prefix string) *TurnSequence {
	if prefix == "" {
		prefix = "turn"
	}
	return &TurnSequence{prefix: prefix}
}

// Generate returns the next token.
func (g *TurnSequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
