package intake

import (
	"context"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// Outcome is the triage decision an intake adapter stamps onto a message.
type Outcome struct {
	Category    core.Category
	Importance  float64
	Confidence  float64
	Layer       string
	Provider    string
	NeedsReview bool
	Reasoning   string
}

// Triager produces a triage outcome for an email. Both the unified and the
// ensemble pipelines are exposed to intake through this interface.
type Triager interface {
	Triage(ctx context.Context, email *core.Email) (*Outcome, error)
}

// DomainTrust reports whether a sender domain bypasses classification.
type DomainTrust interface {
	IsTrusted(domain string) bool
}

// trustedOutcome is stamped on mail from trusted domains without running
// any classification layer.
func trustedOutcome(domain string) *Outcome {
	return &Outcome{
		Category:   core.CategoryWichtig,
		Importance: 1.0,
		Confidence: 1.0,
		Layer:      "trusted",
		Provider:   core.ProviderNone,
		Reasoning:  "trusted: sender domain " + domain + " is on the trusted list",
	}
}
