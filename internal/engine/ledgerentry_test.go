package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/session"
)

func TestLedgerEntry_Marcus(t *testing.T) {
	f := newFixture(t)
	chat := privateChat(initiateID)

	_, err := f.command(initiateID, CommandLedger)
	require.NoError(t, err)
	prompt := f.last(chat)
	assert.Equal(t, msgLedgerAskNickname, prompt.Text)

	nick, err := f.text(initiateID, "Marcus")
	require.NoError(t, err)
	_, live := f.fm.Live(nick)
	assert.False(t, live, "raw input is deleted")

	m, _ := f.fm.Live(prompt.Ref)
	assert.Equal(t, msgLedgerAskQuantity, m.Text)

	qty, err := f.text(initiateID, "2 loaves")
	require.NoError(t, err)
	_, live = f.fm.Live(qty)
	assert.False(t, live)

	m, _ = f.fm.Live(prompt.Ref)
	assert.Equal(t, "Distribution summary:\n- Faithful: Marcus\n- Quantity: 2 loaves\n\nConfirm the registration?", m.Text)
	assert.Equal(t, []string{tagLedgerConfirm, tagLedgerCancel}, m.Keyboard.Tags())

	s, ok := session.Get[session.LedgerEntry](f.eng.Sessions(), initiateID)
	require.True(t, ok)
	assert.Equal(t, session.LedgerAwaitingConfirm, s.State)

	require.NoError(t, f.press(initiateID, prompt.Ref, tagLedgerConfirm))
	m, _ = f.fm.Live(prompt.Ref)
	assert.Equal(t, msgLedgerRecorded, m.Text)

	recs, err := f.st.ListLedger(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Marcus", recs[0].Nickname)
	assert.Equal(t, "2 loaves", recs[0].Quantity)
	assert.Equal(t, initiateID, recs[0].RecordedBy)
	assert.Equal(t, "Novice Piers", recs[0].RecordedByName)

	audits := f.audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "📜 New distribution recorded\n- Faithful: Marcus\n- Quantity: 2 loaves\n- Recorded by: Novice Piers (id 201)\n- At: 2026-03-01 12:00:00 UTC", audits[0])
	assert.Equal(t, 0, f.eng.Sessions().Len())
	assert.Equal(t, 1.0, outcomeCount(model.WorkflowLedgerEntry, OutcomeCommitted))
}

func TestLedgerEntry_HermitAllowed(t *testing.T) {
	f := newFixture(t)

	_, err := f.command(hermitID, CommandLedger)
	require.NoError(t, err)
	_, ok := session.Get[session.LedgerEntry](f.eng.Sessions(), hermitID)
	assert.True(t, ok)
}

func TestLedgerEntry_StrangerDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.command(strangerID, CommandLedger)
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Equal(t, msgNotAuthorized, f.last(privateChat(strangerID)).Text)
	assert.Equal(t, 0, f.eng.Sessions().Len())

	recs, err := f.st.ListLedger(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLedgerEntry_Cancel(t *testing.T) {
	f := newFixture(t)

	_, err := f.command(initiateID, CommandLedger)
	require.NoError(t, err)
	prompt := f.last(privateChat(initiateID))
	_, err = f.text(initiateID, "Marcus")
	require.NoError(t, err)
	_, err = f.text(initiateID, "2")
	require.NoError(t, err)

	require.NoError(t, f.press(initiateID, prompt.Ref, tagLedgerCancel))
	m, _ := f.fm.Live(prompt.Ref)
	assert.Equal(t, msgLedgerCancelled, m.Text)

	recs, err := f.st.ListLedger(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 0, f.eng.Sessions().Len())
	assert.Empty(t, f.audits())
}

func TestLedgerEntry_BlankInputKeepsState(t *testing.T) {
	f := newFixture(t)

	_, err := f.command(initiateID, CommandLedger)
	require.NoError(t, err)
	prompt := f.last(privateChat(initiateID))

	_, err = f.text(initiateID, "  ")
	require.NoError(t, err)

	m, _ := f.fm.Live(prompt.Ref)
	assert.Equal(t, msgLedgerAskNickname, m.Text)
	s, _ := session.Get[session.LedgerEntry](f.eng.Sessions(), initiateID)
	assert.Equal(t, session.LedgerAwaitingNickname, s.State)
}

func TestLedgerEntry_DuplicatesAppend(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		_, err := f.command(initiateID, CommandLedger)
		require.NoError(t, err)
		prompt := f.last(privateChat(initiateID))
		_, err = f.text(initiateID, "Marcus")
		require.NoError(t, err)
		_, err = f.text(initiateID, "2")
		require.NoError(t, err)
		require.NoError(t, f.press(initiateID, prompt.Ref, tagLedgerConfirm))
	}

	recs, err := f.st.ListLedger(f.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestLedgerEntry_ConfirmedByOtherOperator(t *testing.T) {
	f := newFixture(t)

	_, err := f.commandIn(groupChat, initiateID, CommandLedger)
	require.NoError(t, err)
	prompt := f.last(groupChat)
	_, err = f.textIn(groupChat, initiateID, "Marcus")
	require.NoError(t, err)
	_, err = f.textIn(groupChat, initiateID, "2")
	require.NoError(t, err)

	require.NoError(t, f.press(hermitID, prompt.Ref, tagLedgerConfirm))

	recs, err := f.st.ListLedger(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, hermitID, recs[0].RecordedBy, "the presser is recorded")
}

func TestLedgerEntry_StrangerPressDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.commandIn(groupChat, initiateID, CommandLedger)
	require.NoError(t, err)
	prompt := f.last(groupChat)
	_, err = f.textIn(groupChat, initiateID, "Marcus")
	require.NoError(t, err)
	_, err = f.textIn(groupChat, initiateID, "2")
	require.NoError(t, err)

	err = f.press(strangerID, prompt.Ref, tagLedgerConfirm)
	assert.True(t, IsKind(err, KindUnauthorized))

	recs, err := f.st.ListLedger(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 1, f.eng.Sessions().Len())
}

func TestLedgerEntry_ConfirmWithoutSession(t *testing.T) {
	f := newFixture(t)
	stale, err := f.fm.Send(f.ctx, privateChat(initiateID), "old summary", ledgerSummaryKeyboard())
	require.NoError(t, err)

	err = f.press(initiateID, stale, tagLedgerConfirm)
	assert.True(t, IsKind(err, KindSessionDesynchronized))

	m, _ := f.fm.Live(stale)
	assert.Equal(t, msgLedgerMissing, m.Text)
}
