package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// BreakerProvider wraps an LLM provider with a circuit breaker so a
// misbehaving backend fails fast instead of tying up classification.
type BreakerProvider struct {
	inner   core.LLMProvider
	breaker *gobreaker.CircuitBreaker[*core.LLMVerdict]
}

// NewBreakerProvider wraps inner with a circuit breaker. The breaker opens
// after maxFailures consecutive failures and probes again after resetTimeout.
func NewBreakerProvider(inner core.LLMProvider, maxFailures uint32, resetTimeout time.Duration, logger *zap.Logger) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("LLM provider circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*core.LLMVerdict](settings),
	}
}

// Name implements core.LLMProvider.
func (p *BreakerProvider) Name() string {
	return p.inner.Name()
}

// ClassifyEmail implements core.LLMProvider. When the breaker is open it
// returns gobreaker.ErrOpenState without touching the backend.
func (p *BreakerProvider) ClassifyEmail(ctx context.Context, email *core.Email, prior *core.PriorSignals) (*core.LLMVerdict, error) {
	return p.breaker.Execute(func() (*core.LLMVerdict, error) {
		return p.inner.ClassifyEmail(ctx, email, prior)
	})
}
