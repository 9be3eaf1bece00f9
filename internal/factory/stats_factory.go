package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/stats"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
)

// NewStatsRepository creates the configured statistics store. The returned
// stop function releases the underlying database handle, if any.
func NewStatsRepository(cfg *config.Config, logger *zap.Logger) (core.StatsRepository, func(), error) {
	switch cfg.Stats.Type {
	case "memory":
		return stats.NewMemoryStats(logger), func() {}, nil
	case "sqlite":
		repo, err := stats.NewSQLiteStats(cfg.Stats.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sqlite stats store: %w", err)
		}
		return repo, repo.Stop, nil
	case "mysql":
		repo, err := stats.NewMySQLStats(cfg.Stats.MySQLDSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create mysql stats store: %w", err)
		}
		return repo, repo.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown stats store type %q", cfg.Stats.Type)
	}
}
