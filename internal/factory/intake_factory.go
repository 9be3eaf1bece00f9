package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/intake"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/trust"
)

// NewTrustChecker builds the trusted-domain checker from configuration.
func NewTrustChecker(cfg *config.Config, logger *zap.Logger) (*trust.Checker, error) {
	return trust.NewChecker(cfg.Trust.Domains, cfg.Trust.FilePath, logger)
}

// NewSMTPIntake builds the SMTP content filter from configuration.
func NewSMTPIntake(cfg *config.Config, triager intake.Triager, trusted intake.DomainTrust, logger *zap.Logger) *intake.SMTPIntake {
	return intake.NewSMTPIntake(triager, trusted, intake.SMTPIntakeConfig{
		ListenAddr:       fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		MaxMessageBytes:  cfg.Server.MaxMessageBytes,
		MaxRecipients:    cfg.Server.MaxRecipients,
		UpstreamHost:     cfg.Server.UpstreamHost,
		UpstreamPort:     cfg.Server.UpstreamPort,
		RejectSpam:       cfg.Server.RejectSpam,
		DefaultAccountID: cfg.Server.DefaultAccountID,
	}, logger)
}
