package testutil

import (
	"fmt"
	"strconv"
	"sync"
)

// CodeSource replays predetermined draws for codegen.Generator.
//
// Draws are given as the codes they should produce, so a test reads
// NewCodeSource("0042", "0042", "1234") and the generator sees 42, 42, 1234.
//
// Thread-safety: CodeSource is safe for concurrent use via internal mutex.
type CodeSource struct {
	mu    sync.Mutex
	draws []int
	idx   int
}

// NewCodeSource creates a source from 4-digit code strings.
// Panics on a code that is not a number.
func NewCodeSource(codes ...string) *CodeSource {
	draws := make([]int, len(codes))
	for i, c := range codes {
		n, err := strconv.Atoi(c)
		if err != nil {
			panic(fmt.Sprintf("CodeSource: invalid code %q", c))
		}
		draws[i] = n
	}
	return &CodeSource{draws: draws}
}

// IntN returns the next predetermined draw.
//
// Panics when the draws are exhausted or a draw is out of range, so a test
// that triggers more generation than it planned fails loudly.
func (s *CodeSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.draws) {
		panic("CodeSource: all draws exhausted")
	}
	d := s.draws[s.idx]
	if d < 0 || d >= n {
		panic(fmt.Sprintf("CodeSource: draw %d outside [0, %d)", d, n))
	}
	s.idx++
	return d
}

// Remaining returns the number of unused draws.
func (s *CodeSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.draws) - s.idx
}
