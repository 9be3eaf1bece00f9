package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedStopsAtRules(t *testing.T) {
	rules := &stubLayer{result: layerResult(LayerRules, CategorySpam, 0.0, 0.95)}
	history := &stubLayer{result: layerResult(LayerHistory, CategoryWichtig, 0.8, 0.9)}
	llm := &stubContextLayer{result: layerResult(LayerLLM, CategoryWichtig, 0.8, 0.9)}
	c := NewUnifiedClassifier(rules, history, llm, 0.85, 0.6, testLogger())

	res, err := c.Classify(context.Background(), testEmail("x@y.example", "s", "b"), false)
	require.NoError(t, err)

	assert.Equal(t, CategorySpam, res.Category)
	assert.Equal(t, LayerRules, res.LayerUsed)
	assert.Equal(t, ProviderNone, res.ProviderUsed)
	assert.True(t, strings.HasPrefix(res.Reasoning, "rules:"))

	// Early stopping means the later layers never ran.
	assert.Equal(t, 0, history.callCount())
	assert.Equal(t, 0, llm.callCount())
}

func TestUnifiedStopsAtHistory(t *testing.T) {
	rules := &stubLayer{result: layerResult(LayerRules, CategoryNewsletter, 0.5, 0.2)}
	history := &stubLayer{result: layerResult(LayerHistory, CategoryWichtig, 0.8, 0.9)}
	llm := &stubContextLayer{result: layerResult(LayerLLM, CategorySpam, 0.0, 0.9)}
	c := NewUnifiedClassifier(rules, history, llm, 0.85, 0.6, testLogger())

	res, err := c.Classify(context.Background(), testEmail("x@y.example", "s", "b"), false)
	require.NoError(t, err)

	assert.Equal(t, CategoryWichtig, res.Category)
	assert.Equal(t, LayerHistory, res.LayerUsed)
	assert.True(t, strings.HasPrefix(res.Reasoning, "history:"))
	assert.Equal(t, 0, llm.callCount())
}

func TestUnifiedFallsThroughToLLM(t *testing.T) {
	rules := &stubLayer{result: layerResult(LayerRules, CategoryNewsletter, 0.5, 0.2)}
	history := &stubLayer{result: layerResult(LayerHistory, CategoryNiceToKnow, 0.5, 0.4)}
	llmRes := layerResult(LayerLLM, CategoryActionRequired, 0.9, 0.8)
	llmRes.Provider = "ollama:llama3"
	llm := &stubContextLayer{result: llmRes}
	c := NewUnifiedClassifier(rules, history, llm, 0.85, 0.6, testLogger())

	res, err := c.Classify(context.Background(), testEmail("x@y.example", "s", "b"), false)
	require.NoError(t, err)

	assert.Equal(t, CategoryActionRequired, res.Category)
	assert.Equal(t, LayerLLM, res.LayerUsed)
	assert.Equal(t, "ollama:llama3", res.ProviderUsed)
	assert.True(t, strings.HasPrefix(res.Reasoning, "llm:"))
	assert.Contains(t, res.Reasoning, "earlier layers")

	// The LLM received the earlier layers' verdicts as context.
	assert.NotNil(t, llm.lastRule)
	assert.NotNil(t, llm.lastHistory)
}

func TestUnifiedForceLLMSkipsEarlierLayers(t *testing.T) {
	rules := &stubLayer{result: layerResult(LayerRules, CategorySpam, 0.0, 0.95)}
	history := &stubLayer{result: layerResult(LayerHistory, CategoryWichtig, 0.8, 0.9)}
	llm := &stubContextLayer{result: layerResult(LayerLLM, CategoryNiceToKnow, 0.5, 0.7)}
	c := NewUnifiedClassifier(rules, history, llm, 0.85, 0.6, testLogger())

	res, err := c.Classify(context.Background(), testEmail("x@y.example", "s", "b"), true)
	require.NoError(t, err)

	assert.Equal(t, LayerLLM, res.LayerUsed)
	assert.Equal(t, 0, rules.callCount())
	assert.Equal(t, 0, history.callCount())
	assert.Nil(t, llm.lastRule)
	assert.Nil(t, llm.lastHistory)
}

func TestUnifiedPropagatesLLMFailure(t *testing.T) {
	rules := &stubLayer{result: layerResult(LayerRules, CategoryNewsletter, 0.5, 0.2)}
	history := &stubLayer{result: layerResult(LayerHistory, CategoryNiceToKnow, 0.5, 0.4)}
	wantErr := &LayerError{Layer: LayerLLM, Err: errors.New("all providers failed")}
	llm := &stubContextLayer{err: wantErr}
	c := NewUnifiedClassifier(rules, history, llm, 0.85, 0.6, testLogger())

	_, err := c.Classify(context.Background(), testEmail("x@y.example", "s", "b"), false)
	require.Error(t, err)

	var layerErr *LayerError
	require.ErrorAs(t, err, &layerErr)
	assert.Equal(t, LayerLLM, layerErr.Layer)
}

func TestUnifiedStatsCounters(t *testing.T) {
	rules := &stubLayer{result: layerResult(LayerRules, CategorySpam, 0.0, 0.95)}
	history := &stubLayer{result: layerResult(LayerHistory, CategoryWichtig, 0.8, 0.9)}
	llm := &stubContextLayer{result: layerResult(LayerLLM, CategoryWichtig, 0.8, 0.7)}
	c := NewUnifiedClassifier(rules, history, llm, 0.85, 0.6, testLogger())

	email := testEmail("x@y.example", "s", "b")
	_, err := c.Classify(context.Background(), email, false)
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), email, true)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 1, stats.ResolvedByLayer[LayerRules])
	assert.Equal(t, 1, stats.ResolvedByLayer[LayerLLM])
	assert.Equal(t, 1, stats.ConfidenceBuckets["high"])
	assert.Equal(t, 1, stats.ConfidenceBuckets["medium"])
}
