package core

import (
	"net/mail"
	"strings"
	"time"
)

// Email is the immutable view of a message entering the triage pipeline.
// It is constructed once by an intake adapter and never mutated by the
// classification layers.
type Email struct {
	EmailID        string
	AccountID      string
	Sender         string
	To             []string
	Subject        string
	Body           string
	Headers        map[string][]string
	ReceivedAt     time.Time
	HasAttachments bool
	IsReply        bool
}

// Layer identifiers recorded on results.
const (
	LayerRules   = "rules"
	LayerHistory = "history"
	LayerLLM     = "llm"
)

// ProviderNone is recorded as the provider when no LLM call was made.
const ProviderNone = "none"

// LayerResult is the verdict of a single classification layer.
// Importance and Confidence are clamped to [0,1] before being returned.
type LayerResult struct {
	Layer      string
	Category   Category
	Importance float64
	Confidence float64
	Reasoning  string

	// Rule layer diagnostics
	MatchedPatterns []string

	// History layer diagnostics
	DataSource      string
	HistoricalCount int

	// LLM layer diagnostics
	Provider string
}

// ClassificationResult is the final output of an orchestrator.
type ClassificationResult struct {
	Category         Category
	Importance       float64
	Confidence       float64
	Reasoning        string
	LayerUsed        string
	ProviderUsed     string
	ProcessingTimeMs int64
}

// EnsembleWeights are the per-layer combination weights used by the
// ensemble orchestrator.
type EnsembleWeights struct {
	Rule    float64
	History float64
	LLM     float64
}

// Agreement describes how far the layers' categories coincide.
type Agreement struct {
	AllAgree     bool
	PartialAgree bool
	Score        float64
}

// Disagreement is recorded when the layers materially disagree and the LLM
// ran. NeedsUserReview flags a true three-way split with a high confidence
// spread; a review-routing collaborator acts on it.
type Disagreement struct {
	RuleCategory       Category
	HistoryCategory    Category
	LLMCategory        Category
	ConfidenceVariance float64
	NeedsUserReview    bool
}

// EnsembleClassification is the final output of the ensemble orchestrator.
type EnsembleClassification struct {
	ClassificationResult

	RuleResult    *LayerResult
	HistoryResult *LayerResult
	LLMResult     *LayerResult

	Weights      EnsembleWeights
	Agreement    Agreement
	Disagreement *Disagreement

	// LLMSkipped is set when smart-skip decided the LLM call was not needed.
	LLMSkipped bool
	// Degraded is set when the LLM layer failed and the result was combined
	// from the remaining layers only.
	Degraded bool
}

// SenderStatistics aggregates observed behavior for one (account, sender)
// pair. Mutated only by the feedback tracker; read-only to the history
// layer.
type SenderStatistics struct {
	AccountID   string
	SenderEmail string

	TotalEmailsReceived int
	TotalReplies        int
	TotalArchived       int
	TotalDeleted        int
	TotalMoved          int

	ReplyRate   float64
	ArchiveRate float64
	DeleteRate  float64

	AverageImportance   float64
	AvgTimeToReplyHours *float64

	PreferredCategory Category

	FirstSeenAt time.Time
	UpdatedAt   time.Time
}

// DomainStatistics aggregates behavior across all senders at a domain.
// Deletes are not tracked at this granularity.
type DomainStatistics struct {
	AccountID string
	Domain    string

	TotalEmailsReceived int
	TotalReplies        int
	TotalArchived       int
	TotalMoved          int

	ReplyRate   float64
	ArchiveRate float64

	AverageImportance   float64
	AvgTimeToReplyHours *float64

	PreferredCategory Category

	FirstSeenAt time.Time
	UpdatedAt   time.Time
}

// ActionType enumerates user actions observed on an already-classified
// email.
type ActionType string

const (
	ActionReplied         ActionType = "replied"
	ActionArchived        ActionType = "archived"
	ActionDeleted         ActionType = "deleted"
	ActionStarred         ActionType = "starred"
	ActionMovedFolder     ActionType = "moved_folder"
	ActionMarkedImportant ActionType = "marked_important"
	ActionMarkedSpam      ActionType = "marked_spam"
)

// ClassificationSnapshot is the classification an email carried at the time
// a user action was observed.
type ClassificationSnapshot struct {
	Category   Category
	Importance float64
	Confidence float64
}

// FeedbackAction is one append-only audit record of an observed user
// action. Created exactly once; never mutated or deleted.
type FeedbackAction struct {
	ID            string
	AccountID     string
	EmailID       string
	SenderEmail   string
	SenderDomain  string
	ActionType    ActionType
	ActionDetails string

	InferredImportance float64
	InferredCategory   Category

	Original *ClassificationSnapshot

	ActionTakenAt time.Time
}

// NormalizeSender lowercases a raw sender string and splits it into address
// and domain. Display-name forms ("Name <a@b>") are unwrapped; an address
// without "@" yields the whole string as its domain.
func NormalizeSender(raw string) (email, domain string) {
	addr := strings.TrimSpace(raw)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	email = strings.ToLower(addr)
	if i := strings.LastIndex(email, "@"); i >= 0 {
		domain = email[i+1:]
	} else {
		domain = email
	}
	return email, domain
}
