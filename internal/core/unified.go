package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Confidence buckets tracked for observability.
const (
	bucketHigh   = "high"
	bucketMedium = "medium"
	bucketLow    = "low"
)

// UnifiedStats is a snapshot of the unified orchestrator's accounting
// counters. These are process-local observability aggregates, not part of
// the classification contract.
type UnifiedStats struct {
	ResolvedByLayer   map[string]int
	ConfidenceBuckets map[string]int
}

// UnifiedClassifier runs the three layers in sequence with early stopping:
// the first layer whose confidence clears the high-confidence threshold is
// authoritative and the remaining layers are never invoked. The LLM result,
// when reached, is always authoritative.
type UnifiedClassifier struct {
	rules           Layer
	history         Layer
	llm             ContextLayer
	highThreshold   float64
	mediumThreshold float64
	logger          *zap.Logger

	mu                sync.Mutex
	resolvedByLayer   map[string]int
	confidenceBuckets map[string]int
}

// NewUnifiedClassifier creates a new early-stopping orchestrator.
// highThreshold defaults to 0.85, mediumThreshold to 0.6.
func NewUnifiedClassifier(rules Layer, history Layer, llm ContextLayer, highThreshold, mediumThreshold float64, logger *zap.Logger) *UnifiedClassifier {
	if highThreshold <= 0 {
		highThreshold = 0.85
	}
	if mediumThreshold <= 0 {
		mediumThreshold = 0.6
	}
	return &UnifiedClassifier{
		rules:             rules,
		history:           history,
		llm:               llm,
		highThreshold:     highThreshold,
		mediumThreshold:   mediumThreshold,
		logger:            logger,
		resolvedByLayer:   make(map[string]int),
		confidenceBuckets: make(map[string]int),
	}
}

// Classify runs rules → history → LLM with early exit at the configured
// high-confidence threshold. forceLLM skips directly to the LLM layer.
func (c *UnifiedClassifier) Classify(ctx context.Context, email *Email, forceLLM bool) (*ClassificationResult, error) {
	start := time.Now()

	var ruleResult, historyResult *LayerResult

	if !forceLLM {
		var err error
		ruleResult, err = c.rules.Classify(ctx, email)
		if err != nil {
			return nil, &LayerError{Layer: LayerRules, Err: err}
		}
		if ruleResult.Confidence >= c.highThreshold {
			c.record(LayerRules, ruleResult.Confidence)
			return c.finish(ruleResult, ProviderNone, fmt.Sprintf("rules: %s", ruleResult.Reasoning), start), nil
		}

		historyResult, err = c.history.Classify(ctx, email)
		if err != nil {
			return nil, &LayerError{Layer: LayerHistory, Err: err}
		}
		if historyResult.Confidence >= c.highThreshold {
			c.record(LayerHistory, historyResult.Confidence)
			return c.finish(historyResult, ProviderNone, fmt.Sprintf("history: %s", historyResult.Reasoning), start), nil
		}
	}

	llmResult, err := c.llm.ClassifyWithContext(ctx, email, ruleResult, historyResult)
	if err != nil {
		return nil, err
	}
	c.record(LayerLLM, llmResult.Confidence)

	reasoning := fmt.Sprintf("llm: %s", llmResult.Reasoning)
	if ruleResult != nil && historyResult != nil {
		reasoning += fmt.Sprintf(" (earlier layers: rules=%s at %.2f confidence, history=%s at %.2f confidence)",
			ruleResult.Category, ruleResult.Confidence,
			historyResult.Category, historyResult.Confidence)
	}
	return c.finish(llmResult, llmResult.Provider, reasoning, start), nil
}

func (c *UnifiedClassifier) finish(layer *LayerResult, provider, reasoning string, start time.Time) *ClassificationResult {
	result := &ClassificationResult{
		Category:         layer.Category,
		Importance:       Clamp01(layer.Importance),
		Confidence:       Clamp01(layer.Confidence),
		Reasoning:        reasoning,
		LayerUsed:        layer.Layer,
		ProviderUsed:     provider,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	c.logger.Debug("Unified classification complete",
		zap.String("layer", result.LayerUsed),
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", result.Confidence),
		zap.Int64("elapsed_ms", result.ProcessingTimeMs))
	return result
}

func (c *UnifiedClassifier) record(layer string, confidence float64) {
	bucket := bucketLow
	switch {
	case confidence >= c.highThreshold:
		bucket = bucketHigh
	case confidence >= c.mediumThreshold:
		bucket = bucketMedium
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvedByLayer[layer]++
	c.confidenceBuckets[bucket]++
}

// Stats returns a copy of the orchestration counters.
func (c *UnifiedClassifier) Stats() UnifiedStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := UnifiedStats{
		ResolvedByLayer:   make(map[string]int, len(c.resolvedByLayer)),
		ConfidenceBuckets: make(map[string]int, len(c.confidenceBuckets)),
	}
	for k, v := range c.resolvedByLayer {
		stats.ResolvedByLayer[k] = v
	}
	for k, v := range c.confidenceBuckets {
		stats.ConfidenceBuckets[k] = v
	}
	return stats
}
