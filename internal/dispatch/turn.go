package dispatch

import (
	"github.com/google/uuid"
)

// TurnTokenGenerator produces the correlation token attached to each
// update. Implemented by UUIDv7Generator (production) and
// testutil.TurnSequence (tests).
type TurnTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 turn tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort by
// arrival in logs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
