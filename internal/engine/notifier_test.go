package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fake "github.com/roach88/cloister/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_Delivers(t *testing.T) {
	resetMetrics()
	fm := fake.NewFakeMessenger()
	n := NewNotifier(fm, auditChat, WithNotifierLogger(quietLogger()))

	n.Notify(context.Background(), "one")
	n.Notify(context.Background(), "two")
	n.Wait()

	var texts []string
	for _, m := range fm.Chat(auditChat) {
		texts = append(texts, m.Text)
	}
	assert.ElementsMatch(t, []string{"one", "two"}, texts)
	assert.Equal(t, 2.0, testutil.ToFloat64(auditNotifications.WithLabelValues("delivered")))
}

func TestNotifier_DetachedFromTurnContext(t *testing.T) {
	resetMetrics()
	fm := fake.NewFakeMessenger()
	n := NewNotifier(fm, auditChat, WithNotifierLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, "after the turn ended")
	n.Wait()

	require.Len(t, fm.Chat(auditChat), 1)
}

func TestNotifier_FailureIsSwallowed(t *testing.T) {
	resetMetrics()
	fm := fake.NewFakeMessenger()
	fm.FailNext(fake.OpSend, auditChat, errors.New("bot was kicked"))
	n := NewNotifier(fm, auditChat, WithNotifierLogger(quietLogger()))

	n.Notify(context.Background(), "lost")
	n.Wait()

	assert.Empty(t, fm.Chat(auditChat))
	assert.Equal(t, 1.0, testutil.ToFloat64(auditNotifications.WithLabelValues("failed")))
	assert.Len(t, fm.CallsTo(auditChat), 1, "no retry")
}

func TestNotifier_Disabled(t *testing.T) {
	resetMetrics()
	fm := fake.NewFakeMessenger()
	n := NewNotifier(fm, 0, WithNotifierLogger(quietLogger()))

	assert.False(t, n.Enabled())
	n.Notify(context.Background(), "nowhere")
	n.Wait()

	assert.Empty(t, fm.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(auditNotifications.WithLabelValues("disabled")))
}
