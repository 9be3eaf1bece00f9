package config

import "time"

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Ensemble   EnsembleConfig   `mapstructure:"ensemble"`
	History    HistoryConfig    `mapstructure:"history"`
	Feedback   FeedbackConfig   `mapstructure:"feedback"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Bedrock    BedrockConfig    `mapstructure:"bedrock"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Trust      TrustConfig      `mapstructure:"trust"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds SMTP intake settings.
type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	MaxMessageBytes  int           `mapstructure:"max_message_bytes"`
	MaxRecipients    int           `mapstructure:"max_recipients"`
	UpstreamHost     string        `mapstructure:"upstream_host"`
	UpstreamPort     int           `mapstructure:"upstream_port"`
	RejectSpam       bool          `mapstructure:"reject_spam"`
	DefaultAccountID string        `mapstructure:"default_account_id"`
}

// ClassifierConfig selects and tunes the classification pipeline.
type ClassifierConfig struct {
	// Mode is "unified" (early-stopping cascade) or "ensemble" (parallel vote).
	Mode                  string  `mapstructure:"mode"`
	HighConfidence        float64 `mapstructure:"high_confidence"`
	MediumConfidence      float64 `mapstructure:"medium_confidence"`
	ForceLLM              bool    `mapstructure:"force_llm"`
	FineGrainedCategories bool    `mapstructure:"fine_grained_categories"`
}

// EnsembleConfig tunes the parallel ensemble classifier.
type EnsembleConfig struct {
	RuleWeight             float64       `mapstructure:"rule_weight"`
	HistoryWeight          float64       `mapstructure:"history_weight"`
	LLMWeight              float64       `mapstructure:"llm_weight"`
	BootstrapRuleWeight    float64       `mapstructure:"bootstrap_rule_weight"`
	BootstrapHistoryWeight float64       `mapstructure:"bootstrap_history_weight"`
	BootstrapLLMWeight     float64       `mapstructure:"bootstrap_llm_weight"`
	BootstrapMaxAge        time.Duration `mapstructure:"bootstrap_max_age"`
	SmartLLMSkip           bool          `mapstructure:"smart_llm_skip"`
	AllowDegraded          bool          `mapstructure:"allow_degraded"`
}

// HistoryConfig tunes the sender-history layer.
type HistoryConfig struct {
	MinSenderEmails int `mapstructure:"min_sender_emails"`
	MinDomainEmails int `mapstructure:"min_domain_emails"`
}

// FeedbackConfig tunes the feedback learning loop.
type FeedbackConfig struct {
	EMAAlpha              float64 `mapstructure:"ema_alpha"`
	MinObservationsForEMA int     `mapstructure:"min_observations_for_ema"`
}

// LLMConfig selects the LLM providers and shared LLM behaviour.
type LLMConfig struct {
	Provider            string        `mapstructure:"provider"`
	FallbackProvider    string        `mapstructure:"fallback_provider"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxBodySize         int           `mapstructure:"max_body_size"`
	BreakerEnabled      bool          `mapstructure:"breaker_enabled"`
	BreakerMaxFailures  uint32        `mapstructure:"breaker_max_failures"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
}

// OllamaConfig holds settings for a local ollama instance.
type OllamaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	Region      string  `mapstructure:"region"`
	ModelID     string  `mapstructure:"model_id"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// StatsConfig selects the statistics store backend.
type StatsConfig struct {
	Type       string `mapstructure:"type"`
	SQLitePath string `mapstructure:"sqlite_path"`
	MySQLDSN   string `mapstructure:"mysql_dsn"`
}

// TrustConfig holds the trusted-domain bypass list.
type TrustConfig struct {
	Domains  []string `mapstructure:"domains"`
	FilePath string   `mapstructure:"file_path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
