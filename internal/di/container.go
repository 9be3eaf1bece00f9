package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/intake"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/logging"
	"github.com/mikey/llm-mail-triage/internal/trust"
)

// BuildContainer wires the daemon's dependency graph.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() (*config.Config, error) {
		return config.LoadConfig(configPath)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config) (*zap.Logger, error) {
		return logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*factory.Pipeline, error) {
		return factory.NewPipeline(context.Background(), cfg, logger)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(factory.NewTrustChecker); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config, p *factory.Pipeline, trusted *trust.Checker, logger *zap.Logger) *intake.SMTPIntake {
		return factory.NewSMTPIntake(cfg, p.Triager, trusted, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
