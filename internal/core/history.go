package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Data sources recorded on history results.
const (
	DataSourceSender = "sender"
	DataSourceDomain = "domain"
	DataSourceNone   = "none"
)

const (
	senderBaseConfidence = 0.85
	domainBaseConfidence = 0.75
	confidenceBonusStep  = 0.01
	confidenceBonusCap   = 0.10
)

// HistoryClassifier is the second layer: it derives a verdict from the
// sender's (or, as a fallback, the domain's) observed behavior. Sender data
// always takes priority over domain data when sufficient. Storage failures
// degrade to a low-confidence result; this layer never fails the pipeline.
type HistoryClassifier struct {
	stats           StatsRepository
	logger          *zap.Logger
	minSenderEmails int
	minDomainEmails int
}

// NewHistoryClassifier creates a new history classifier. minSenderEmails
// and minDomainEmails are the data-volume floors below which a row is
// considered too sparse (defaults 5 and 10).
func NewHistoryClassifier(stats StatsRepository, logger *zap.Logger, minSenderEmails, minDomainEmails int) *HistoryClassifier {
	if minSenderEmails <= 0 {
		minSenderEmails = 5
	}
	if minDomainEmails <= 0 {
		minDomainEmails = 10
	}
	return &HistoryClassifier{
		stats:           stats,
		logger:          logger,
		minSenderEmails: minSenderEmails,
		minDomainEmails: minDomainEmails,
	}
}

// Classify looks up sender- then domain-level statistics and derives a
// verdict from the behavioral rates.
func (c *HistoryClassifier) Classify(ctx context.Context, email *Email) (*LayerResult, error) {
	sender, domain := NormalizeSender(email.Sender)

	senderStats, err := c.stats.GetSenderStats(ctx, email.AccountID, sender)
	if err != nil && !errors.Is(err, ErrStatsNotFound) {
		c.logger.Warn("Sender statistics lookup failed, treating as no data",
			zap.Error(err),
			zap.String("sender", sender))
		senderStats = nil
	}

	if senderStats != nil && senderStats.TotalEmailsReceived >= c.minSenderEmails {
		return c.fromSender(senderStats), nil
	}

	domainStats, err := c.stats.GetDomainStats(ctx, email.AccountID, domain)
	if err != nil && !errors.Is(err, ErrStatsNotFound) {
		c.logger.Warn("Domain statistics lookup failed, treating as no data",
			zap.Error(err),
			zap.String("domain", domain))
		domainStats = nil
	}

	if domainStats != nil && domainStats.TotalEmailsReceived >= c.minDomainEmails {
		return c.fromDomain(domainStats), nil
	}

	// Some data exists, just not enough of it.
	if senderStats != nil || domainStats != nil {
		count := 0
		if senderStats != nil {
			count = senderStats.TotalEmailsReceived
		} else {
			count = domainStats.TotalEmailsReceived
		}
		return &LayerResult{
			Layer:           LayerHistory,
			Category:        CategoryNiceToKnow,
			Importance:      0.5,
			Confidence:      0.4,
			Reasoning:       "insufficient historical data",
			DataSource:      DataSourceNone,
			HistoricalCount: count,
		}, nil
	}

	// Cold start.
	return &LayerResult{
		Layer:      LayerHistory,
		Category:   CategoryNiceToKnow,
		Importance: 0.5,
		Confidence: 0.2,
		Reasoning:  "no historical data for sender or domain",
		DataSource: DataSourceNone,
	}, nil
}

func (c *HistoryClassifier) fromSender(stats *SenderStatistics) *LayerResult {
	derived := CategorizeFromRates(RateProfile{
		ReplyRate:           stats.ReplyRate,
		ArchiveRate:         stats.ArchiveRate,
		DeleteRate:          stats.DeleteRate,
		AvgTimeToReplyHours: stats.AvgTimeToReplyHours,
		TrackDeletes:        true,
	})
	confidence := historyConfidence(senderBaseConfidence, stats.TotalEmailsReceived, c.minSenderEmails)
	return &LayerResult{
		Layer:           LayerHistory,
		Category:        derived.Category,
		Importance:      Clamp01(derived.Importance),
		Confidence:      confidence,
		Reasoning:       fmt.Sprintf("sender history over %d emails: %s", stats.TotalEmailsReceived, derived.Reasoning),
		DataSource:      DataSourceSender,
		HistoricalCount: stats.TotalEmailsReceived,
	}
}

func (c *HistoryClassifier) fromDomain(stats *DomainStatistics) *LayerResult {
	derived := CategorizeFromRates(RateProfile{
		ReplyRate:           stats.ReplyRate,
		ArchiveRate:         stats.ArchiveRate,
		AvgTimeToReplyHours: stats.AvgTimeToReplyHours,
		TrackDeletes:        false,
	})
	confidence := historyConfidence(domainBaseConfidence, stats.TotalEmailsReceived, c.minDomainEmails)
	return &LayerResult{
		Layer:           LayerHistory,
		Category:        derived.Category,
		Importance:      Clamp01(derived.Importance),
		Confidence:      confidence,
		Reasoning:       fmt.Sprintf("domain history over %d emails: %s", stats.TotalEmailsReceived, derived.Reasoning),
		DataSource:      DataSourceDomain,
		HistoricalCount: stats.TotalEmailsReceived,
	}
}

// historyConfidence grows base confidence with data volume beyond the
// threshold, capped at +0.10.
func historyConfidence(base float64, count, threshold int) float64 {
	bonus := confidenceBonusStep * float64(count-threshold)
	if bonus > confidenceBonusCap {
		bonus = confidenceBonusCap
	}
	if bonus < 0 {
		bonus = 0
	}
	return Clamp01(base + bonus)
}
