package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cloister/internal/model"
)

func TestStart_ListsCommandsByRole(t *testing.T) {
	f := newFixture(t)

	_, err := f.command(hermitID, CommandStart)
	require.NoError(t, err)
	text := f.last(privateChat(hermitID)).Text
	assert.Contains(t, text, "/newcode")
	assert.Contains(t, text, "/checkcode")
	assert.Contains(t, text, "/ledger")

	_, err = f.command(initiateID, CommandHelp)
	require.NoError(t, err)
	text = f.last(privateChat(initiateID)).Text
	assert.Contains(t, text, "/ledger")
	assert.NotContains(t, text, "/newcode")

	_, err = f.command(strangerID, CommandStart)
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Equal(t, msgNotAuthorized, f.last(privateChat(strangerID)).Text)
	assert.Equal(t, 0, f.eng.Sessions().Len())
}

func TestCancel_ClosesEverySession(t *testing.T) {
	f := newFixture(t, "0042")
	chat := privateChat(hermitID)

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	issuePrompt := f.last(chat)
	_, err = f.command(hermitID, CommandLedger)
	require.NoError(t, err)
	ledgerPrompt := f.last(chat)
	require.Equal(t, 2, f.eng.Sessions().Len())

	_, err = f.command(hermitID, CommandCancel)
	require.NoError(t, err)

	assert.Equal(t, 0, f.eng.Sessions().Len())
	for _, ref := range []model.MessageRef{issuePrompt.Ref, ledgerPrompt.Ref} {
		m, ok := f.fm.Live(ref)
		require.True(t, ok)
		assert.Equal(t, msgClosed, m.Text)
	}

	codes, err := f.st.ListCodes(f.ctx, false)
	require.NoError(t, err)
	assert.Empty(t, codes)
	assert.Equal(t, 1.0, outcomeCount(model.WorkflowCodeIssue, OutcomeCancelled))
	assert.Equal(t, 1.0, outcomeCount(model.WorkflowLedgerEntry, OutcomeCancelled))
}

func TestCancel_NothingToCancel(t *testing.T) {
	f := newFixture(t)

	_, err := f.command(initiateID, CommandCancel)
	require.NoError(t, err)
	assert.Equal(t, msgNothingToStop, f.last(privateChat(initiateID)).Text)
}

func TestText_MostRecentSessionWins(t *testing.T) {
	f := newFixture(t, "0042")

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.command(hermitID, CommandLedger)
	require.NoError(t, err)

	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)

	ledger := f.eng.Sessions()
	s, ok := ledger.Lookup(hermitID, model.WorkflowLedgerEntry)
	require.True(t, ok)
	assert.Equal(t, "ledger.awaiting_quantity", string(s.Current()))

	issue, ok := ledger.Lookup(hermitID, model.WorkflowCodeIssue)
	require.True(t, ok)
	assert.Equal(t, "issue.awaiting_nickname", string(issue.Current()))
}

func TestCommands_MenuNamesAreRouted(t *testing.T) {
	names := make([]string, 0, len(Commands))
	for _, c := range Commands {
		names = append(names, c.Name)
		assert.NotEmpty(t, c.Description)
	}
	assert.ElementsMatch(t, []string{CommandNewCode, CommandCheckCode, CommandLedger, CommandCancel, CommandHelp}, names)
}
