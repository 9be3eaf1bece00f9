package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadConfig reads configuration from the given file (optional) and from
// MAIL_TRIAGE_* environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 10025)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_message_bytes", 10*1024*1024)
	v.SetDefault("server.max_recipients", 50)
	v.SetDefault("server.upstream_host", "127.0.0.1")
	v.SetDefault("server.upstream_port", 10026)
	v.SetDefault("server.reject_spam", false)
	v.SetDefault("server.default_account_id", "default")

	// Classifier
	v.SetDefault("classifier.mode", "unified")
	v.SetDefault("classifier.high_confidence", 0.85)
	v.SetDefault("classifier.medium_confidence", 0.6)
	v.SetDefault("classifier.force_llm", false)
	v.SetDefault("classifier.fine_grained_categories", false)

	// Ensemble
	v.SetDefault("ensemble.rule_weight", 0.2)
	v.SetDefault("ensemble.history_weight", 0.3)
	v.SetDefault("ensemble.llm_weight", 0.5)
	v.SetDefault("ensemble.bootstrap_rule_weight", 0.4)
	v.SetDefault("ensemble.bootstrap_history_weight", 0.2)
	v.SetDefault("ensemble.bootstrap_llm_weight", 0.4)
	v.SetDefault("ensemble.bootstrap_max_age", 14*24*time.Hour)
	v.SetDefault("ensemble.smart_llm_skip", false)
	v.SetDefault("ensemble.allow_degraded", true)

	// History
	v.SetDefault("history.min_sender_emails", 5)
	v.SetDefault("history.min_domain_emails", 10)

	// Feedback
	v.SetDefault("feedback.ema_alpha", 0.15)
	v.SetDefault("feedback.min_observations_for_ema", 3)

	// LLM
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.fallback_provider", "")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_body_size", 4096)
	v.SetDefault("llm.breaker_enabled", true)
	v.SetDefault("llm.breaker_max_failures", 5)
	v.SetDefault("llm.breaker_reset_timeout", 60*time.Second)

	// Ollama
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3")
	v.SetDefault("ollama.timeout", 60*time.Second)

	// OpenAI
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.1)

	// Bedrock
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 300)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	// Gemini
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.1)

	// Stats
	v.SetDefault("stats.type", "memory")
	v.SetDefault("stats.sqlite_path", "mail-triage.db")

	// Trust
	v.SetDefault("trust.domains", []string{})
	v.SetDefault("trust.file_path", "")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	switch cfg.Classifier.Mode {
	case "unified", "ensemble":
	default:
		return fmt.Errorf("unknown classifier mode %q", cfg.Classifier.Mode)
	}

	switch cfg.Stats.Type {
	case "memory", "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown stats store type %q", cfg.Stats.Type)
	}

	if cfg.Classifier.HighConfidence < cfg.Classifier.MediumConfidence {
		return fmt.Errorf("classifier.high_confidence (%.2f) must not be below classifier.medium_confidence (%.2f)",
			cfg.Classifier.HighConfidence, cfg.Classifier.MediumConfidence)
	}

	if cfg.Feedback.EMAAlpha <= 0 || cfg.Feedback.EMAAlpha >= 1 {
		return fmt.Errorf("feedback.ema_alpha must be in (0, 1), got %.3f", cfg.Feedback.EMAAlpha)
	}

	return nil
}
