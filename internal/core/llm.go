package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LLMClassifier is the third layer: a primary (typically local) model with
// automatic fallback to a secondary hosted model. It is the only layer with
// genuine external-failure risk; when both providers fail, the failure
// propagates to the orchestrator.
type LLMClassifier struct {
	primary    LLMProvider
	fallback   LLMProvider
	categories CategorySet
	timeout    time.Duration
	logger     *zap.Logger
}

// NewLLMClassifier creates a new LLM classifier. fallback may be nil, in
// which case a primary failure is terminal. timeout bounds each provider
// call independently.
func NewLLMClassifier(primary, fallback LLMProvider, categories CategorySet, timeout time.Duration, logger *zap.Logger) *LLMClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMClassifier{
		primary:    primary,
		fallback:   fallback,
		categories: categories,
		timeout:    timeout,
		logger:     logger,
	}
}

// Classify triages without prior-layer context.
func (c *LLMClassifier) Classify(ctx context.Context, email *Email) (*LayerResult, error) {
	return c.ClassifyWithContext(ctx, email, nil, nil)
}

// ClassifyWithContext triages the email, feeding the earlier layers'
// verdicts into the prompt when provided. Any primary failure (timeout,
// connection error, malformed or out-of-vocabulary response) falls back to
// the secondary provider.
func (c *LLMClassifier) ClassifyWithContext(ctx context.Context, email *Email, rule, history *LayerResult) (*LayerResult, error) {
	prior := &PriorSignals{RuleResult: rule, HistoryResult: history}

	result, primaryErr := c.classifyWith(ctx, c.primary, email, prior)
	if primaryErr == nil {
		return result, nil
	}

	if c.fallback == nil {
		return nil, &LayerError{
			Layer: LayerLLM,
			Err:   fmt.Errorf("provider %s failed and no fallback is configured: %w", c.primary.Name(), primaryErr),
		}
	}

	c.logger.Warn("Primary LLM provider failed, falling back",
		zap.String("primary", c.primary.Name()),
		zap.String("fallback", c.fallback.Name()),
		zap.Error(primaryErr))

	result, fallbackErr := c.classifyWith(ctx, c.fallback, email, prior)
	if fallbackErr == nil {
		return result, nil
	}

	return nil, &LayerError{
		Layer: LayerLLM,
		Err: errors.Join(
			fmt.Errorf("primary provider %s: %w", c.primary.Name(), primaryErr),
			fmt.Errorf("fallback provider %s: %w", c.fallback.Name(), fallbackErr),
		),
	}
}

func (c *LLMClassifier) classifyWith(ctx context.Context, provider LLMProvider, email *Email, prior *PriorSignals) (*LayerResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	verdict, err := provider.ClassifyEmail(callCtx, email, prior)
	if err != nil {
		return nil, err
	}

	category, ok := c.categories.Normalize(verdict.Category)
	if !ok {
		return nil, fmt.Errorf("provider %s returned unrecognized category %q", provider.Name(), verdict.Category)
	}

	reasoning := verdict.Reasoning
	if reasoning == "" {
		reasoning = "model gave no reasoning"
	}

	return &LayerResult{
		Layer:      LayerLLM,
		Category:   category,
		Importance: Clamp01(verdict.Importance),
		Confidence: Clamp01(verdict.Confidence),
		Reasoning:  reasoning,
		Provider:   provider.Name(),
	}, nil
}
