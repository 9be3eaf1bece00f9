package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
)

func TestMemoryStatsSenderRoundTrip(t *testing.T) {
	store := NewMemoryStats(zap.NewNop())
	ctx := context.Background()

	_, err := store.GetSenderStats(ctx, "acct-1", "boss@corp.example")
	assert.ErrorIs(t, err, core.ErrStatsNotFound)

	replyTime := 2.5
	row := &core.SenderStatistics{
		AccountID:           "acct-1",
		SenderEmail:         "boss@corp.example",
		TotalEmailsReceived: 7,
		TotalReplies:        5,
		ReplyRate:           5.0 / 7.0,
		AverageImportance:   0.8,
		AvgTimeToReplyHours: &replyTime,
		PreferredCategory:   core.CategoryWichtig,
		FirstSeenAt:         time.Now().Add(-time.Hour),
		UpdatedAt:           time.Now(),
	}
	require.NoError(t, store.UpsertSenderStats(ctx, row))

	got, err := store.GetSenderStats(ctx, "acct-1", "boss@corp.example")
	require.NoError(t, err)
	assert.Equal(t, 7, got.TotalEmailsReceived)
	assert.Equal(t, core.CategoryWichtig, got.PreferredCategory)
	require.NotNil(t, got.AvgTimeToReplyHours)
	assert.Equal(t, 2.5, *got.AvgTimeToReplyHours)

	// The store hands out copies, not aliases.
	*got.AvgTimeToReplyHours = 99
	got2, err := store.GetSenderStats(ctx, "acct-1", "boss@corp.example")
	require.NoError(t, err)
	assert.Equal(t, 2.5, *got2.AvgTimeToReplyHours)
}

func TestMemoryStatsDomainRoundTrip(t *testing.T) {
	store := NewMemoryStats(zap.NewNop())
	ctx := context.Background()

	_, err := store.GetDomainStats(ctx, "acct-1", "corp.example")
	assert.ErrorIs(t, err, core.ErrStatsNotFound)

	require.NoError(t, store.UpsertDomainStats(ctx, &core.DomainStatistics{
		AccountID:           "acct-1",
		Domain:              "corp.example",
		TotalEmailsReceived: 12,
		ReplyRate:           0.5,
	}))

	got, err := store.GetDomainStats(ctx, "acct-1", "corp.example")
	require.NoError(t, err)
	assert.Equal(t, 12, got.TotalEmailsReceived)
}

func TestMemoryStatsAccountsAreIsolated(t *testing.T) {
	store := NewMemoryStats(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.UpsertSenderStats(ctx, &core.SenderStatistics{
		AccountID:   "acct-1",
		SenderEmail: "boss@corp.example",
	}))

	_, err := store.GetSenderStats(ctx, "acct-2", "boss@corp.example")
	assert.ErrorIs(t, err, core.ErrStatsNotFound)
}

func TestMemoryStatsFeedbackLogIsAppendOnly(t *testing.T) {
	store := NewMemoryStats(zap.NewNop())
	ctx := context.Background()

	for i, action := range []core.ActionType{core.ActionReplied, core.ActionArchived} {
		require.NoError(t, store.AppendFeedback(ctx, &core.FeedbackAction{
			ID:            string(rune('a' + i)),
			AccountID:     "acct-1",
			SenderEmail:   "boss@corp.example",
			ActionType:    action,
			ActionTakenAt: time.Now(),
		}))
	}

	log := store.FeedbackLog()
	require.Len(t, log, 2)
	assert.Equal(t, core.ActionReplied, log[0].ActionType)
	assert.Equal(t, core.ActionArchived, log[1].ActionType)

	// Mutating the returned slice does not touch the stored trail.
	log[0].ActionType = core.ActionDeleted
	assert.Equal(t, core.ActionReplied, store.FeedbackLog()[0].ActionType)
}
