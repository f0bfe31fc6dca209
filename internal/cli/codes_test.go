package cli

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/store"
	"github.com/roach88/cloister/internal/testutil"
)

// seedStore creates a database with the given codes issued by actor 101
// and returns its path.
func seedStore(t *testing.T, codes map[string]string, retired ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloister.db")
	st, err := store.Open(path, store.WithClock(testutil.NewStepClock(0).Now))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for _, code := range slices.Sorted(maps.Keys(codes)) {
		_, err := st.InsertCode(ctx, code, codes[code], 101)
		require.NoError(t, err)
	}
	for _, code := range retired {
		_, err := st.RetireCode(ctx, code, 102)
		require.NoError(t, err)
	}
	return path
}

func TestCodesShow_Text(t *testing.T) {
	t.Setenv("CLOISTER_CONFIG", "")
	db := seedStore(t, map[string]string{"0427": "Marcus"})

	out, _, err := execute(t, "codes", "show", "0427", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Code 0427\n\n"+
		"ID: 1\n"+
		"Player: Marcus\n"+
		"Created at: 2026-03-01 12:00:00 UTC\n"+
		"Created by: 101\n"+
		"Status: ACTIVE\n", out)
}

func TestCodesShow_JSONRetired(t *testing.T) {
	db := seedStore(t, map[string]string{"0427": "Marcus"}, "0427")

	out, _, err := execute(t, "--format", "json", "codes", "show", " 0427 ", "--db", db)
	require.NoError(t, err)

	var ac model.AccessCode
	decodeData(t, out, &ac)
	assert.Equal(t, "0427", ac.Code)
	assert.False(t, ac.Active)
	require.NotNil(t, ac.RetiredAt)
	assert.Equal(t, model.ActorID(102), ac.RetiredBy)
}

func TestCodesShow_NotFound(t *testing.T) {
	db := seedStore(t, nil)

	out, _, err := execute(t, "codes", "show", "9999", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]: code 9999 not found")
}

func TestCodesShow_InvalidCode(t *testing.T) {
	for _, arg := range []string{"123", "12345", "abcd"} {
		t.Run(arg, func(t *testing.T) {
			out, _, err := execute(t, "codes", "show", arg, "--db", filepath.Join(t.TempDir(), "unused.db"))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "E004")
		})
	}
}

func TestCodesList(t *testing.T) {
	db := seedStore(t, map[string]string{"0427": "Marcus", "1881": "Ada"}, "0427")

	out, _, err := execute(t, "--format", "json", "codes", "list", "--db", db)
	require.NoError(t, err)
	var all []model.AccessCode
	decodeData(t, out, &all)
	require.Len(t, all, 2)
	assert.Equal(t, "0427", all[0].Code)
	assert.Equal(t, "1881", all[1].Code)

	out, _, err = execute(t, "--format", "json", "codes", "list", "--active", "--db", db)
	require.NoError(t, err)
	var active []model.AccessCode
	decodeData(t, out, &active)
	require.Len(t, active, 1)
	assert.Equal(t, "1881", active[0].Code)
}

func TestCodesList_TextEmpty(t *testing.T) {
	out, _, err := execute(t, "codes", "list", "--db", seedStore(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "No codes.\n", out)
}

func TestCodesList_TextRows(t *testing.T) {
	out, _, err := execute(t, "codes", "list", "--db", seedStore(t, map[string]string{"0427": "Marcus"}))
	require.NoError(t, err)
	assert.Equal(t, "   1  0427  ACTIVE   2026-03-01 12:00:00 UTC  Marcus\n", out)
}

func TestCodesRetire(t *testing.T) {
	db := seedStore(t, map[string]string{"0427": "Marcus"})

	out, _, err := execute(t, "codes", "retire", "0427", "--by", "102", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Code 0427 retired.\n", out)

	// A second retirement is refused and changes nothing.
	out, _, err = execute(t, "codes", "retire", "0427", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E006")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	ac, err := st.GetCode(context.Background(), "0427")
	require.NoError(t, err)
	assert.False(t, ac.Active)
	assert.Equal(t, model.ActorID(102), ac.RetiredBy)
}

func TestCodesRetire_NotFound(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "codes", "retire", "4242", "--db", seedStore(t, nil))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"code":"E005"`)
}

func TestCodes_DatabaseFromConfig(t *testing.T) {
	db := seedStore(t, map[string]string{"0427": "Marcus"})
	t.Setenv("CLOISTER_CONFIG", "")
	t.Setenv("CLOISTER_DATABASE", db)

	out, _, err := execute(t, "codes", "list", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "0427")
}

func TestCodes_UnreadableConfig(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "codes", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
