package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its transcript against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be played or one of its
// expectations fails. A transcript mismatch fails the test through goldie.
func RunWithGolden(t *testing.T, sc *Scenario) error {
	t.Helper()

	result, err := Run(sc)
	if err != nil {
		return err
	}
	AssertGolden(t, sc, result)

	if !result.Pass {
		return fmt.Errorf("scenario %s failed:\n  %s", sc.Name, strings.Join(result.Errors, "\n  "))
	}
	return nil
}

// AssertGolden compares an existing result's transcript against the golden
// file named after the scenario.
func AssertGolden(t *testing.T, sc *Scenario, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, Transcript(sc, result))
}
