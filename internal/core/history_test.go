package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func seedSender(repo *fakeStats, accountID, sender string, stats SenderStatistics) {
	stats.AccountID = accountID
	stats.SenderEmail = sender
	stats.FirstSeenAt = time.Now().Add(-30 * 24 * time.Hour)
	stats.UpdatedAt = time.Now()
	repo.senders[repo.key(accountID, sender)] = &stats
}

func seedDomain(repo *fakeStats, accountID, domain string, stats DomainStatistics) {
	stats.AccountID = accountID
	stats.Domain = domain
	stats.FirstSeenAt = time.Now().Add(-30 * 24 * time.Hour)
	stats.UpdatedAt = time.Now()
	repo.domains[repo.key(accountID, domain)] = &stats
}

func TestHistoryClassifierSenderFastReplier(t *testing.T) {
	repo := newFakeStats()
	seedSender(repo, "acct-1", "boss@corp.example", SenderStatistics{
		TotalEmailsReceived: 20,
		TotalReplies:        18,
		ReplyRate:           0.9,
		AvgTimeToReplyHours: floatPtr(1.0),
	})
	c := NewHistoryClassifier(repo, testLogger(), 5, 10)

	res, err := c.Classify(context.Background(), testEmail("boss@corp.example", "Q3", "numbers"))
	require.NoError(t, err)

	assert.Equal(t, CategoryActionRequired, res.Category)
	assert.Equal(t, 0.9, res.Importance)
	assert.Equal(t, DataSourceSender, res.DataSource)
	assert.Equal(t, 20, res.HistoricalCount)
	// base 0.85 plus 0.01 per email beyond the threshold, capped at +0.10
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestHistoryClassifierSenderConfidenceBonusCap(t *testing.T) {
	repo := newFakeStats()
	seedSender(repo, "acct-1", "boss@corp.example", SenderStatistics{
		TotalEmailsReceived: 500,
		ReplyRate:           0.9,
	})
	c := NewHistoryClassifier(repo, testLogger(), 5, 10)

	res, err := c.Classify(context.Background(), testEmail("boss@corp.example", "x", "y"))
	require.NoError(t, err)

	assert.Equal(t, CategoryWichtig, res.Category)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestHistoryClassifierRateMapping(t *testing.T) {
	tests := []struct {
		name       string
		stats      SenderStatistics
		category   Category
		importance float64
	}{
		{
			name:       "frequent fast replies",
			stats:      SenderStatistics{TotalEmailsReceived: 10, ReplyRate: 0.8, AvgTimeToReplyHours: floatPtr(1.5)},
			category:   CategoryActionRequired,
			importance: 0.9,
		},
		{
			name:       "frequent slow replies",
			stats:      SenderStatistics{TotalEmailsReceived: 10, ReplyRate: 0.8, AvgTimeToReplyHours: floatPtr(8)},
			category:   CategoryWichtig,
			importance: 0.8,
		},
		{
			name:       "occasional replies",
			stats:      SenderStatistics{TotalEmailsReceived: 10, ReplyRate: 0.4},
			category:   CategoryNiceToKnow,
			importance: 0.5,
		},
		{
			name:       "mostly archived",
			stats:      SenderStatistics{TotalEmailsReceived: 10, ReplyRate: 0.1, ArchiveRate: 0.85},
			category:   CategoryNewsletter,
			importance: 0.3,
		},
		{
			name:       "mostly deleted",
			stats:      SenderStatistics{TotalEmailsReceived: 10, ReplyRate: 0.1, DeleteRate: 0.7},
			category:   CategorySpam,
			importance: 0.1,
		},
		{
			name:       "low engagement",
			stats:      SenderStatistics{TotalEmailsReceived: 10, ReplyRate: 0.1},
			category:   CategorySystemNotification,
			importance: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeStats()
			seedSender(repo, "acct-1", "sender@corp.example", tt.stats)
			c := NewHistoryClassifier(repo, testLogger(), 5, 10)

			res, err := c.Classify(context.Background(), testEmail("sender@corp.example", "s", "b"))
			require.NoError(t, err)
			assert.Equal(t, tt.category, res.Category)
			assert.Equal(t, tt.importance, res.Importance)
		})
	}
}

// A sender below the sender threshold whose domain is above the domain
// threshold classifies via the domain, not the insufficient-data branch.
func TestHistoryClassifierDomainFallback(t *testing.T) {
	repo := newFakeStats()
	seedSender(repo, "acct-1", "new.colleague@corp.example", SenderStatistics{
		TotalEmailsReceived: 2,
		ReplyRate:           1.0,
	})
	seedDomain(repo, "acct-1", "corp.example", DomainStatistics{
		TotalEmailsReceived: 15,
		ReplyRate:           0.75,
	})
	c := NewHistoryClassifier(repo, testLogger(), 5, 10)

	res, err := c.Classify(context.Background(), testEmail("new.colleague@corp.example", "hi", "hello"))
	require.NoError(t, err)

	assert.Equal(t, DataSourceDomain, res.DataSource)
	assert.Equal(t, CategoryWichtig, res.Category)
	assert.Equal(t, 15, res.HistoricalCount)
	// base 0.75 plus 0.01 for each of the 5 emails beyond the threshold
	assert.InDelta(t, 0.80, res.Confidence, 1e-9)
}

func TestHistoryClassifierInsufficientData(t *testing.T) {
	repo := newFakeStats()
	seedSender(repo, "acct-1", "new@corp.example", SenderStatistics{
		TotalEmailsReceived: 2,
	})
	c := NewHistoryClassifier(repo, testLogger(), 5, 10)

	res, err := c.Classify(context.Background(), testEmail("new@corp.example", "hi", "hello"))
	require.NoError(t, err)

	assert.Equal(t, CategoryNiceToKnow, res.Category)
	assert.Equal(t, 0.5, res.Importance)
	assert.Equal(t, 0.4, res.Confidence)
	assert.Equal(t, DataSourceNone, res.DataSource)
	assert.Equal(t, 2, res.HistoricalCount)
}

func TestHistoryClassifierColdStart(t *testing.T) {
	repo := newFakeStats()
	c := NewHistoryClassifier(repo, testLogger(), 5, 10)

	res, err := c.Classify(context.Background(), testEmail("stranger@elsewhere.example", "hi", "hello"))
	require.NoError(t, err)

	assert.Equal(t, CategoryNiceToKnow, res.Category)
	assert.Equal(t, 0.5, res.Importance)
	assert.Equal(t, 0.2, res.Confidence)
}

// Storage failures degrade to the no-data path instead of failing the
// pipeline.
func TestHistoryClassifierStorageErrorDegrades(t *testing.T) {
	repo := newFakeStats()
	repo.senderErr = errors.New("connection refused")
	repo.domainErr = errors.New("connection refused")
	c := NewHistoryClassifier(repo, testLogger(), 5, 10)

	res, err := c.Classify(context.Background(), testEmail("boss@corp.example", "x", "y"))
	require.NoError(t, err)
	assert.Equal(t, 0.2, res.Confidence)
	assert.Equal(t, DataSourceNone, res.DataSource)
}

func TestHistoryClassifierNormalizesSender(t *testing.T) {
	repo := newFakeStats()
	seedSender(repo, "acct-1", "boss@corp.example", SenderStatistics{
		TotalEmailsReceived: 10,
		ReplyRate:           0.9,
	})
	c := NewHistoryClassifier(repo, testLogger(), 5, 10)

	res, err := c.Classify(context.Background(), testEmail(`"The Boss" <Boss@CORP.example>`, "x", "y"))
	require.NoError(t, err)
	assert.Equal(t, DataSourceSender, res.DataSource)
}
