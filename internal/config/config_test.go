package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 10025, cfg.Server.Port)
	assert.Equal(t, 10026, cfg.Server.UpstreamPort)
	assert.False(t, cfg.Server.RejectSpam)

	assert.Equal(t, "unified", cfg.Classifier.Mode)
	assert.Equal(t, 0.85, cfg.Classifier.HighConfidence)
	assert.Equal(t, 0.6, cfg.Classifier.MediumConfidence)

	assert.Equal(t, 0.2, cfg.Ensemble.RuleWeight)
	assert.Equal(t, 0.3, cfg.Ensemble.HistoryWeight)
	assert.Equal(t, 0.5, cfg.Ensemble.LLMWeight)
	assert.True(t, cfg.Ensemble.AllowDegraded)

	assert.Equal(t, 5, cfg.History.MinSenderEmails)
	assert.Equal(t, 10, cfg.History.MinDomainEmails)
	assert.Equal(t, 0.15, cfg.Feedback.EMAAlpha)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.True(t, cfg.LLM.BreakerEnabled)
	assert.Equal(t, "memory", cfg.Stats.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
classifier:
  mode: ensemble
  force_llm: true
llm:
  provider: openai
  fallback_provider: ollama
stats:
  type: sqlite
  sqlite_path: /tmp/triage.db
trust:
  domains:
    - corp.example
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ensemble", cfg.Classifier.Mode)
	assert.True(t, cfg.Classifier.ForceLLM)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "ollama", cfg.LLM.FallbackProvider)
	assert.Equal(t, "sqlite", cfg.Stats.Type)
	assert.Equal(t, "/tmp/triage.db", cfg.Stats.SQLitePath)
	assert.Equal(t, []string{"corp.example"}, cfg.Trust.Domains)

	// Settings not present in the file keep their defaults.
	assert.Equal(t, 10025, cfg.Server.Port)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MAIL_TRIAGE_CLASSIFIER_MODE", "ensemble")
	t.Setenv("MAIL_TRIAGE_LLM_PROVIDER", "gemini")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "ensemble", cfg.Classifier.Mode)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad classifier mode",
			content: "classifier:\n  mode: hybrid\n",
			wantErr: "classifier mode",
		},
		{
			name:    "bad stats type",
			content: "stats:\n  type: redis\n",
			wantErr: "stats store type",
		},
		{
			name:    "inverted confidence thresholds",
			content: "classifier:\n  high_confidence: 0.5\n  medium_confidence: 0.6\n",
			wantErr: "high_confidence",
		},
		{
			name:    "alpha out of range",
			content: "feedback:\n  ema_alpha: 1.5\n",
			wantErr: "ema_alpha",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
