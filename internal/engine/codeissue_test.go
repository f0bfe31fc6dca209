package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cloister/internal/auth"
	"github.com/roach88/cloister/internal/codegen"
	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/session"
	"github.com/roach88/cloister/internal/store"
	fake "github.com/roach88/cloister/internal/testutil"
	"github.com/roach88/cloister/internal/transport"
)

func TestCodeIssue_Marcus(t *testing.T) {
	f := newFixture(t, "0042")
	chat := privateChat(hermitID)

	cmd, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)

	prompt := f.last(chat)
	assert.Equal(t, issuePromptText("0042"), prompt.Text)
	assert.Nil(t, prompt.Keyboard)

	s, ok := session.Get[session.CodeIssue](f.eng.Sessions(), hermitID)
	require.True(t, ok)
	assert.Equal(t, session.IssueAwaitingNickname, s.State)
	assert.Equal(t, "0042", s.Code)

	reply, err := f.text(hermitID, "  Marcus ")
	require.NoError(t, err)

	for _, ref := range []model.MessageRef{cmd, prompt.Ref, reply} {
		_, live := f.fm.Live(ref)
		assert.False(t, live, "message %d should be deleted", ref.MessageID)
	}

	summary := f.last(chat)
	assert.Equal(t, issueSummaryText("0042", "Marcus"), summary.Text)
	assert.Equal(t, []string{tagIssueConfirm, tagIssueCancel}, summary.Keyboard.Tags())
	assert.Len(t, f.fm.Chat(chat), 1, "only the summary remains")

	require.NoError(t, f.press(hermitID, summary.Ref, tagIssueConfirm))

	done, _ := f.fm.Live(summary.Ref)
	assert.Equal(t, "Code registered.\n\nID: 1\nPlayer: Marcus\nCode: 0042\nCreated at: 2026-03-01 12:00:00 UTC", done.Text)
	assert.Nil(t, done.Keyboard)

	ac, err := f.st.GetCode(f.ctx, "0042")
	require.NoError(t, err)
	assert.True(t, ac.Active)
	assert.Equal(t, "Marcus", ac.Owner)
	assert.Equal(t, hermitID, ac.CreatedBy)

	audits := f.audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "📜 New code issued\n\nID: 1\nPlayer: Marcus\nCode: 0042\nIssued by: Brother Anselm (id 101)\nAt: 2026-03-01 12:00:00 UTC", audits[0])

	assert.Equal(t, 0, f.eng.Sessions().Len())
	assert.Equal(t, 1.0, outcomeCount(model.WorkflowCodeIssue, OutcomeCommitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(auditNotifications.WithLabelValues("delivered")))
}

func TestCodeIssue_NormalizesNickname(t *testing.T) {
	f := newFixture(t, "0042")

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, " Jose\u0301\n")
	require.NoError(t, err)

	s, ok := session.Get[session.CodeIssue](f.eng.Sessions(), hermitID)
	require.True(t, ok)
	assert.Equal(t, "Jos\u00e9", s.Owner)
}

func TestCodeIssue_CancelLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, "0042")
	chat := privateChat(hermitID)

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	summary := f.last(chat)

	require.NoError(t, f.press(hermitID, summary.Ref, tagIssueCancel))

	m, _ := f.fm.Live(summary.Ref)
	assert.Equal(t, msgIssueCancelled, m.Text)
	assert.Nil(t, m.Keyboard)

	exists, err := f.st.CodeExists(f.ctx, "0042")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, f.eng.Sessions().Len())
	assert.Empty(t, f.audits())
}

func TestCodeIssue_UnauthorizedCreatesNothing(t *testing.T) {
	for _, id := range []model.ActorID{strangerID, initiateID} {
		t.Run(displayNames[id], func(t *testing.T) {
			f := newFixture(t, "0042")

			_, err := f.command(id, CommandNewCode)
			assert.True(t, IsKind(err, KindUnauthorized))

			assert.Equal(t, msgNotAuthorized, f.last(privateChat(id)).Text)
			assert.Equal(t, 0, f.eng.Sessions().Len())
			assert.Equal(t, 1, f.src.Remaining(), "no code drawn")

			codes, err := f.st.ListCodes(f.ctx, false)
			require.NoError(t, err)
			assert.Empty(t, codes)
			assert.Equal(t, 1.0, testutil.ToFloat64(unauthorizedAttempts.WithLabelValues(string(model.WorkflowCodeIssue))))
		})
	}
}

func TestCodeIssue_ConfirmedByAnotherHermit(t *testing.T) {
	f := newFixture(t, "0042")

	_, err := f.commandIn(groupChat, hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.textIn(groupChat, hermitID, "Marcus")
	require.NoError(t, err)
	summary := f.last(groupChat)

	require.NoError(t, f.press(hermit2ID, summary.Ref, tagIssueConfirm))

	ac, err := f.st.GetCode(f.ctx, "0042")
	require.NoError(t, err)
	assert.Equal(t, hermit2ID, ac.CreatedBy, "the presser is recorded")
	assert.Contains(t, f.audits()[0], "Issued by: Sister Hild (id 102)")
}

func TestCodeIssue_ConfirmByInitiateDenied(t *testing.T) {
	f := newFixture(t, "0042")

	_, err := f.commandIn(groupChat, hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.textIn(groupChat, hermitID, "Marcus")
	require.NoError(t, err)
	summary := f.last(groupChat)

	err = f.press(initiateID, summary.Ref, tagIssueConfirm)
	assert.True(t, IsKind(err, KindUnauthorized))

	answers := f.fm.Answers()
	require.Len(t, answers, 1)
	assert.Equal(t, msgNotAuthorized, answers[0].Text)

	m, _ := f.fm.Live(summary.Ref)
	assert.Equal(t, summary.Text, m.Text, "owner's prompt intact")
	assert.Equal(t, 1, f.eng.Sessions().Len(), "owner's session intact")

	exists, err := f.st.CodeExists(f.ctx, "0042")
	require.NoError(t, err)
	assert.False(t, exists)

	// The owner can still finish.
	require.NoError(t, f.press(hermitID, summary.Ref, tagIssueConfirm))
	exists, err = f.st.CodeExists(f.ctx, "0042")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCodeIssue_ConcurrentCollision(t *testing.T) {
	// Both hermits draw 0042 before either commits.
	f := newFixture(t, "0042", "0042")

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.command(hermit2ID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	_, err = f.text(hermit2ID, "Aurelia")
	require.NoError(t, err)

	first := f.last(privateChat(hermitID))
	second := f.last(privateChat(hermit2ID))

	require.NoError(t, f.press(hermitID, first.Ref, tagIssueConfirm))
	err = f.press(hermit2ID, second.Ref, tagIssueConfirm)
	assert.True(t, IsKind(err, KindUniquenessConflict))

	m, _ := f.fm.Live(second.Ref)
	assert.Equal(t, issueConflictText("0042"), m.Text)

	codes, err := f.st.ListCodes(f.ctx, false)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "Marcus", codes[0].Owner)
	assert.Len(t, f.audits(), 1)
	assert.Equal(t, 0, f.eng.Sessions().Len())
	assert.Equal(t, 1.0, outcomeCount(model.WorkflowCodeIssue, OutcomeConflict))
}

// staleExists reports every code as free, as a check made just before
// another commit would.
type staleExists struct {
	CodeStore
}

func (staleExists) CodeExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestCodeIssue_ConflictDetectedByStore(t *testing.T) {
	f := newFixtureWith(t, func(cs CodeStore) CodeStore { return staleExists{cs} }, "0042", "0042")

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.command(hermit2ID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	_, err = f.text(hermit2ID, "Aurelia")
	require.NoError(t, err)

	first := f.last(privateChat(hermitID))
	second := f.last(privateChat(hermit2ID))

	require.NoError(t, f.press(hermitID, first.Ref, tagIssueConfirm))
	err = f.press(hermit2ID, second.Ref, tagIssueConfirm)
	require.True(t, IsKind(err, KindUniquenessConflict), "got %v", err)
	assert.ErrorIs(t, err, store.ErrCodeConflict)

	m, _ := f.fm.Live(second.Ref)
	assert.Equal(t, issueConflictText("0042"), m.Text)

	codes, err := f.st.ListCodes(f.ctx, false)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "Marcus", codes[0].Owner)
	assert.Len(t, f.audits(), 1)
	assert.Equal(t, 0, f.eng.Sessions().Len())
}

func TestCodeIssue_SimultaneousConfirmsCommitOnce(t *testing.T) {
	f := newFixture(t, "0042", "0042")

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.command(hermit2ID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	_, err = f.text(hermit2ID, "Aurelia")
	require.NoError(t, err)

	presses := []transport.Update{
		confirmPress(hermitID, f.last(privateChat(hermitID)).Ref, "cb-a"),
		confirmPress(hermit2ID, f.last(privateChat(hermit2ID)).Ref, "cb-b"),
	}

	errs := make([]error, len(presses))
	var wg sync.WaitGroup
	for i, upd := range presses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.eng.HandleUpdate(f.ctx, upd)
		}()
	}
	wg.Wait()

	var committed, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case IsKind(err, KindUniquenessConflict):
			conflicts++
		default:
			t.Errorf("unexpected turn error: %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, conflicts)

	codes, err := f.st.ListCodes(f.ctx, false)
	require.NoError(t, err)
	assert.Len(t, codes, 1)
	assert.Len(t, f.audits(), 1)
}

func confirmPress(id model.ActorID, msg model.MessageRef, actionID string) transport.Update {
	return transport.Update{
		Kind:      transport.UpdateAction,
		Actor:     actor(id),
		Chat:      msg.Chat,
		Message:   msg,
		ActionID:  actionID,
		ActionTag: tagIssueConfirm,
	}
}

func TestCodeIssue_TextInAnotherChatIgnored(t *testing.T) {
	f := newFixture(t, "0042")
	chat := privateChat(hermitID)

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	prompt := f.last(chat)
	before := len(f.fm.Calls())

	stray, err := f.textIn(groupChat, hermitID, "hello everyone")
	require.NoError(t, err)

	assert.Len(t, f.fm.Calls(), before, "nothing is sent, edited or deleted")
	assert.Empty(t, f.fm.CallsTo(groupChat))
	_, live := f.fm.Live(stray)
	assert.True(t, live, "the group message stays")

	s, ok := session.Get[session.CodeIssue](f.eng.Sessions(), hermitID)
	require.True(t, ok)
	assert.Equal(t, session.IssueAwaitingNickname, s.State)
	assert.Empty(t, s.Owner)
	assert.Equal(t, "0042", s.Code)

	// The private dialogue carries on.
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	_, live = f.fm.Live(prompt.Ref)
	assert.False(t, live)
	assert.Equal(t, issueSummaryText("0042", "Marcus"), f.last(chat).Text)
}

func TestCodeIssue_RestartClosesPreviousDialogue(t *testing.T) {
	f := newFixture(t, "0042", "0043")
	chat := privateChat(hermitID)

	firstCmd, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	firstPrompt := f.last(chat)

	secondCmd, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)

	_, live := f.fm.Live(firstCmd)
	assert.False(t, live, "the earlier command is deleted")
	old, live := f.fm.Live(firstPrompt.Ref)
	require.True(t, live)
	assert.Equal(t, msgClosed, old.Text)
	assert.NotContains(t, old.Text, "0042")

	_, live = f.fm.Live(secondCmd)
	assert.True(t, live)
	assert.Equal(t, issuePromptText("0043"), f.last(chat).Text)

	s, ok := session.Get[session.CodeIssue](f.eng.Sessions(), hermitID)
	require.True(t, ok)
	assert.Equal(t, "0043", s.Code)
	assert.Equal(t, 1, f.eng.Sessions().Len())
}

func TestCodeIssue_DoubleConfirmCommitsOnce(t *testing.T) {
	f := newFixture(t, "0042")

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	summary := f.last(privateChat(hermitID))

	require.NoError(t, f.press(hermitID, summary.Ref, tagIssueConfirm))
	err = f.press(hermitID, summary.Ref, tagIssueConfirm)
	assert.True(t, IsKind(err, KindSessionDesynchronized))

	codes, err := f.st.ListCodes(f.ctx, false)
	require.NoError(t, err)
	assert.Len(t, codes, 1)
	assert.Len(t, f.audits(), 1)
}

func TestCodeIssue_ConfirmWithoutSession(t *testing.T) {
	f := newFixture(t)
	stale, err := f.fm.Send(f.ctx, privateChat(hermitID), "summary from before a restart", issueSummaryKeyboard())
	require.NoError(t, err)

	err = f.press(hermitID, stale, tagIssueConfirm)
	assert.True(t, IsKind(err, KindSessionDesynchronized))

	m, _ := f.fm.Live(stale)
	assert.Equal(t, msgIssueMissing, m.Text)
	codes, err := f.st.ListCodes(f.ctx, false)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestCodeIssue_SessionWithoutCodeTerminates(t *testing.T) {
	f := newFixture(t)
	f.eng.Sessions().Start(hermitID, privateChat(hermitID), session.CodeIssue{State: session.IssueAwaitingNickname})

	_, err := f.text(hermitID, "Marcus")
	assert.True(t, IsKind(err, KindSessionDesynchronized))

	assert.Equal(t, msgIssueLost, f.last(privateChat(hermitID)).Text)
	assert.Equal(t, 0, f.eng.Sessions().Len(), "no fresh session is created")
}

func TestCodeIssue_BlankNicknameReprompts(t *testing.T) {
	f := newFixture(t, "0042")
	chat := privateChat(hermitID)

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	prompt := f.last(chat)

	blank, err := f.text(hermitID, "   ")
	require.NoError(t, err)

	_, live := f.fm.Live(blank)
	assert.False(t, live)
	m, _ := f.fm.Live(prompt.Ref)
	assert.Equal(t, issueRepromptText("0042"), m.Text)

	s, ok := session.Get[session.CodeIssue](f.eng.Sessions(), hermitID)
	require.True(t, ok)
	assert.Equal(t, session.IssueAwaitingNickname, s.State)
}

func TestCodeIssue_RoleRevokedMidFlow(t *testing.T) {
	f := newFixture(t, "0042")
	hermit := true
	f.eng.authz = auth.Func(func(id model.ActorID) model.Role {
		if id == hermitID && hermit {
			return model.RoleHermit
		}
		return model.RoleNone
	})

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)

	hermit = false
	_, err = f.text(hermitID, "Marcus")
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Equal(t, msgNotAuthorized, f.last(privateChat(hermitID)).Text)
	assert.Equal(t, 0, f.eng.Sessions().Len())
}

func TestCodeIssue_GenerationExhausted(t *testing.T) {
	f := newFixture(t)
	_, err := f.st.InsertCode(f.ctx, "0042", "Marcus", hermitID)
	require.NoError(t, err)
	f.eng.gen = codegen.New(f.st,
		codegen.WithSource(fake.NewCodeSource("0042", "0042")),
		codegen.WithMaxAttempts(2),
	)

	_, err = f.command(hermitID, CommandNewCode)
	assert.True(t, IsKind(err, KindGenerationExhausted))
	assert.ErrorIs(t, err, codegen.ErrGenerationExhausted)
	assert.Equal(t, msgIssueExhausted, f.last(privateChat(hermitID)).Text)
	assert.Equal(t, 0, f.eng.Sessions().Len())
}

func TestCodeIssue_AuditFailureKeepsCommit(t *testing.T) {
	f := newFixture(t, "0042")
	f.fm.FailNext(fake.OpSend, auditChat, errors.New("chat not found"))

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	summary := f.last(privateChat(hermitID))

	require.NoError(t, f.press(hermitID, summary.Ref, tagIssueConfirm))
	assert.Empty(t, f.audits())

	exists, err := f.st.CodeExists(f.ctx, "0042")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1.0, testutil.ToFloat64(auditNotifications.WithLabelValues("failed")))
}

func TestCodeIssue_DeleteFailuresSwallowed(t *testing.T) {
	f := newFixture(t, "0042")
	f.fm.FailAlways(fake.OpDelete, 0, errors.New("message can't be deleted"))

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)

	s, ok := session.Get[session.CodeIssue](f.eng.Sessions(), hermitID)
	require.True(t, ok)
	assert.Equal(t, session.IssueStaged, s.State)
	assert.Equal(t, 3.0, testutil.ToFloat64(transportErrors.WithLabelValues("delete")))
}

func TestCodeIssue_EditFailureFallsBackToSend(t *testing.T) {
	f := newFixture(t, "0042")
	chat := privateChat(hermitID)

	_, err := f.command(hermitID, CommandNewCode)
	require.NoError(t, err)
	_, err = f.text(hermitID, "Marcus")
	require.NoError(t, err)
	summary := f.last(chat)

	f.fm.FailNext(fake.OpEdit, chat, errors.New("message is too old"))
	require.NoError(t, f.press(hermitID, summary.Ref, tagIssueConfirm))

	last := f.last(chat)
	assert.NotEqual(t, summary.Ref, last.Ref)
	assert.Contains(t, last.Text, "Code registered.")
}
