package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStatsNotFound is returned by a StatsRepository when no row exists for
// the requested key.
var ErrStatsNotFound = errors.New("statistics not found")

// StatsRepository is the statistics store consumed by the history layer and
// maintained by the feedback tracker. Upserts are atomic per key; update
// serialization for a given key is the caller's responsibility.
type StatsRepository interface {
	// GetSenderStats retrieves the row for (accountID, senderEmail), or
	// ErrStatsNotFound.
	GetSenderStats(ctx context.Context, accountID, senderEmail string) (*SenderStatistics, error)

	// GetDomainStats retrieves the row for (accountID, domain), or
	// ErrStatsNotFound.
	GetDomainStats(ctx context.Context, accountID, domain string) (*DomainStatistics, error)

	// UpsertSenderStats writes the full sender row.
	UpsertSenderStats(ctx context.Context, stats *SenderStatistics) error

	// UpsertDomainStats writes the full domain row.
	UpsertDomainStats(ctx context.Context, stats *DomainStatistics) error

	// AppendFeedback appends one audit record. Records are never updated or
	// deleted.
	AppendFeedback(ctx context.Context, action *FeedbackAction) error
}

// PriorSignals carries earlier layers' verdicts into the LLM prompt so the
// model is not classifying blind when those layers had partial signal.
type PriorSignals struct {
	RuleResult    *LayerResult
	HistoryResult *LayerResult
}

// PromptBlock renders the prior signals as a prompt fragment shared by all
// providers. Returns "" when no prior layer ran.
func (p *PriorSignals) PromptBlock() string {
	if p == nil || (p.RuleResult == nil && p.HistoryResult == nil) {
		return ""
	}
	block := "Earlier automatic checks suggested:\n"
	if p.RuleResult != nil {
		block += fmt.Sprintf("- pattern rules: %s (confidence %.2f)\n", p.RuleResult.Category, p.RuleResult.Confidence)
	}
	if p.HistoryResult != nil {
		block += fmt.Sprintf("- sender history: %s (confidence %.2f)\n", p.HistoryResult.Category, p.HistoryResult.Confidence)
	}
	return block
}

// LLMVerdict is the raw structured response from an LLM provider, before
// category normalization and clamping.
type LLMVerdict struct {
	Category   string
	Importance float64
	Confidence float64
	Reasoning  string
}

// LLMProvider defines the interface for a single LLM backend.
type LLMProvider interface {
	// Name identifies the provider in results and logs.
	Name() string

	// ClassifyEmail asks the model to triage the email. prior may be nil.
	ClassifyEmail(ctx context.Context, email *Email, prior *PriorSignals) (*LLMVerdict, error)
}

// Layer is a classification layer invokable without prior context.
type Layer interface {
	Classify(ctx context.Context, email *Email) (*LayerResult, error)
}

// ContextLayer is a layer that can take earlier layers' results into
// account. The LLM layer implements this.
type ContextLayer interface {
	ClassifyWithContext(ctx context.Context, email *Email, rule, history *LayerResult) (*LayerResult, error)
}

// AccountAgeProvider resolves how old an account is, for bootstrap-phase
// weight selection. Implementations that cannot resolve the age return
// ok=false, which selects production weights.
type AccountAgeProvider interface {
	AccountAge(ctx context.Context, accountID string) (age time.Duration, ok bool)
}

// NoAccountAge is the default AccountAgeProvider: age always unknown.
type NoAccountAge struct{}

// AccountAge always reports the age as unknown.
func (NoAccountAge) AccountAge(context.Context, string) (time.Duration, bool) {
	return 0, false
}

// LayerError reports which layer a pipeline failure originated in.
type LayerError struct {
	Layer string
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("%s layer: %v", e.Layer, e.Err)
}

func (e *LayerError) Unwrap() error {
	return e.Err
}
