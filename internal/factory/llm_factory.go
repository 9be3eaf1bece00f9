package factory

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/bedrock"
	"github.com/mikey/llm-mail-triage/internal/adapters/gemini"
	"github.com/mikey/llm-mail-triage/internal/adapters/ollama"
	"github.com/mikey/llm-mail-triage/internal/adapters/openai"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/resilience"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// NewLLMProvider creates the named LLM provider, wrapped in a circuit
// breaker when enabled. The returned close function releases provider
// resources, if any.
func NewLLMProvider(
	ctx context.Context,
	cfg *config.Config,
	name string,
	categories core.CategorySet,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) (core.LLMProvider, func(), error) {
	var provider core.LLMProvider
	closeFn := func() {}

	switch name {
	case "ollama":
		provider = ollama.NewClient(
			cfg.Ollama.BaseURL,
			cfg.Ollama.Model,
			cfg.Ollama.Timeout,
			categories,
			textProcessor,
			cfg.LLM.MaxBodySize,
			logger,
		)
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, nil, fmt.Errorf("openai provider requires an API key")
		}
		provider = openai.NewClient(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			categories,
			textProcessor,
			cfg.LLM.MaxBodySize,
			logger,
		)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		provider = bedrock.NewClient(
			bedrockruntime.NewFromConfig(awsCfg),
			cfg.Bedrock.ModelID,
			cfg.Bedrock.MaxTokens,
			cfg.Bedrock.Temperature,
			cfg.Bedrock.TopP,
			categories,
			textProcessor,
			cfg.LLM.MaxBodySize,
			logger,
		)
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, nil, fmt.Errorf("gemini provider requires an API key")
		}
		client, err := gemini.NewClient(
			ctx,
			cfg.Gemini.APIKey,
			cfg.Gemini.Model,
			cfg.Gemini.MaxTokens,
			cfg.Gemini.Temperature,
			categories,
			textProcessor,
			cfg.LLM.MaxBodySize,
			logger,
		)
		if err != nil {
			return nil, nil, err
		}
		provider = client
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close gemini client", zap.Error(err))
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", name)
	}

	if cfg.LLM.BreakerEnabled {
		provider = resilience.NewBreakerProvider(provider, cfg.LLM.BreakerMaxFailures, cfg.LLM.BreakerResetTimeout, logger)
	}

	return provider, closeFn, nil
}

// NewLLMClassifier builds the LLM layer from the configured primary and
// optional fallback providers.
func NewLLMClassifier(
	ctx context.Context,
	cfg *config.Config,
	categories core.CategorySet,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) (*core.LLMClassifier, func(), error) {
	primary, closePrimary, err := NewLLMProvider(ctx, cfg, cfg.LLM.Provider, categories, textProcessor, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create primary LLM provider: %w", err)
	}

	var fallback core.LLMProvider
	closeFallback := func() {}
	if cfg.LLM.FallbackProvider != "" && cfg.LLM.FallbackProvider != cfg.LLM.Provider {
		fallback, closeFallback, err = NewLLMProvider(ctx, cfg, cfg.LLM.FallbackProvider, categories, textProcessor, logger)
		if err != nil {
			closePrimary()
			return nil, nil, fmt.Errorf("failed to create fallback LLM provider: %w", err)
		}
	}

	classifier := core.NewLLMClassifier(primary, fallback, categories, cfg.LLM.Timeout, logger)
	closeAll := func() {
		closeFallback()
		closePrimary()
	}
	return classifier, closeAll, nil
}
