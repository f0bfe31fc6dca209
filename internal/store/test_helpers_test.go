package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/cloister/internal/testutil"
)

// createTestStore creates a new store in a temp dir whose clock starts at
// testEpoch and advances one second per stamp.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewStepClock(time.Second).Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = testutil.Epoch
