package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// SQLiteStats is a SQLite implementation of the StatsRepository interface.
// A single file holds the sender/domain statistics rows and the append-only
// feedback audit trail.
type SQLiteStats struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStats opens (creating if necessary) the statistics database at
// dbPath.
func NewSQLiteStats(dbPath string, logger *zap.Logger) (*SQLiteStats, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sender_stats (
			account_id TEXT NOT NULL,
			sender_email TEXT NOT NULL,
			total_emails INTEGER NOT NULL,
			total_replies INTEGER NOT NULL,
			total_archived INTEGER NOT NULL,
			total_deleted INTEGER NOT NULL,
			total_moved INTEGER NOT NULL,
			reply_rate REAL NOT NULL,
			archive_rate REAL NOT NULL,
			delete_rate REAL NOT NULL,
			average_importance REAL NOT NULL,
			avg_time_to_reply_hours REAL,
			preferred_category TEXT NOT NULL,
			first_seen_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (account_id, sender_email)
		)`,
		`CREATE TABLE IF NOT EXISTS domain_stats (
			account_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			total_emails INTEGER NOT NULL,
			total_replies INTEGER NOT NULL,
			total_archived INTEGER NOT NULL,
			total_moved INTEGER NOT NULL,
			reply_rate REAL NOT NULL,
			archive_rate REAL NOT NULL,
			average_importance REAL NOT NULL,
			avg_time_to_reply_hours REAL,
			preferred_category TEXT NOT NULL,
			first_seen_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (account_id, domain)
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_actions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			email_id TEXT NOT NULL,
			sender_email TEXT NOT NULL,
			sender_domain TEXT NOT NULL,
			action_type TEXT NOT NULL,
			action_details TEXT,
			inferred_importance REAL NOT NULL,
			inferred_category TEXT NOT NULL,
			original_category TEXT,
			original_importance REAL,
			original_confidence REAL,
			action_taken_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_sender ON feedback_actions(account_id, sender_email)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStats{db: db, logger: logger}, nil
}

// GetSenderStats retrieves the row for (accountID, senderEmail).
func (s *SQLiteStats) GetSenderStats(ctx context.Context, accountID, senderEmail string) (*core.SenderStatistics, error) {
	row := &core.SenderStatistics{}
	var avgReply sql.NullFloat64
	var firstSeen, updated string

	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, sender_email, total_emails, total_replies,
			total_archived, total_deleted, total_moved,
			reply_rate, archive_rate, delete_rate,
			average_importance, avg_time_to_reply_hours, preferred_category,
			first_seen_at, updated_at
		FROM sender_stats
		WHERE account_id = ? AND sender_email = ?
	`, accountID, senderEmail).Scan(
		&row.AccountID, &row.SenderEmail, &row.TotalEmailsReceived, &row.TotalReplies,
		&row.TotalArchived, &row.TotalDeleted, &row.TotalMoved,
		&row.ReplyRate, &row.ArchiveRate, &row.DeleteRate,
		&row.AverageImportance, &avgReply, &row.PreferredCategory,
		&firstSeen, &updated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to query sender stats: %w", err)
	}

	if avgReply.Valid {
		row.AvgTimeToReplyHours = &avgReply.Float64
	}
	if row.FirstSeenAt, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return nil, fmt.Errorf("failed to parse first_seen_at: %w", err)
	}
	if row.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return row, nil
}

// GetDomainStats retrieves the row for (accountID, domain).
func (s *SQLiteStats) GetDomainStats(ctx context.Context, accountID, domain string) (*core.DomainStatistics, error) {
	row := &core.DomainStatistics{}
	var avgReply sql.NullFloat64
	var firstSeen, updated string

	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, domain, total_emails, total_replies,
			total_archived, total_moved,
			reply_rate, archive_rate,
			average_importance, avg_time_to_reply_hours, preferred_category,
			first_seen_at, updated_at
		FROM domain_stats
		WHERE account_id = ? AND domain = ?
	`, accountID, domain).Scan(
		&row.AccountID, &row.Domain, &row.TotalEmailsReceived, &row.TotalReplies,
		&row.TotalArchived, &row.TotalMoved,
		&row.ReplyRate, &row.ArchiveRate,
		&row.AverageImportance, &avgReply, &row.PreferredCategory,
		&firstSeen, &updated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to query domain stats: %w", err)
	}

	if avgReply.Valid {
		row.AvgTimeToReplyHours = &avgReply.Float64
	}
	if row.FirstSeenAt, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return nil, fmt.Errorf("failed to parse first_seen_at: %w", err)
	}
	if row.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return row, nil
}

// UpsertSenderStats writes the full sender row.
func (s *SQLiteStats) UpsertSenderStats(ctx context.Context, stats *core.SenderStatistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sender_stats (
			account_id, sender_email, total_emails, total_replies,
			total_archived, total_deleted, total_moved,
			reply_rate, archive_rate, delete_rate,
			average_importance, avg_time_to_reply_hours, preferred_category,
			first_seen_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		stats.AccountID, stats.SenderEmail, stats.TotalEmailsReceived, stats.TotalReplies,
		stats.TotalArchived, stats.TotalDeleted, stats.TotalMoved,
		stats.ReplyRate, stats.ArchiveRate, stats.DeleteRate,
		stats.AverageImportance, nullableFloat(stats.AvgTimeToReplyHours), string(stats.PreferredCategory),
		stats.FirstSeenAt.Format(time.RFC3339), stats.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sender stats: %w", err)
	}
	return nil
}

// UpsertDomainStats writes the full domain row.
func (s *SQLiteStats) UpsertDomainStats(ctx context.Context, stats *core.DomainStatistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO domain_stats (
			account_id, domain, total_emails, total_replies,
			total_archived, total_moved,
			reply_rate, archive_rate,
			average_importance, avg_time_to_reply_hours, preferred_category,
			first_seen_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		stats.AccountID, stats.Domain, stats.TotalEmailsReceived, stats.TotalReplies,
		stats.TotalArchived, stats.TotalMoved,
		stats.ReplyRate, stats.ArchiveRate,
		stats.AverageImportance, nullableFloat(stats.AvgTimeToReplyHours), string(stats.PreferredCategory),
		stats.FirstSeenAt.Format(time.RFC3339), stats.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert domain stats: %w", err)
	}
	return nil
}

// AppendFeedback appends one audit record. Inserts only; the table has no
// update path.
func (s *SQLiteStats) AppendFeedback(ctx context.Context, action *core.FeedbackAction) error {
	var origCategory sql.NullString
	var origImportance, origConfidence sql.NullFloat64
	if action.Original != nil {
		origCategory = sql.NullString{String: string(action.Original.Category), Valid: true}
		origImportance = sql.NullFloat64{Float64: action.Original.Importance, Valid: true}
		origConfidence = sql.NullFloat64{Float64: action.Original.Confidence, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_actions (
			id, account_id, email_id, sender_email, sender_domain,
			action_type, action_details, inferred_importance, inferred_category,
			original_category, original_importance, original_confidence,
			action_taken_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		action.ID, action.AccountID, action.EmailID, action.SenderEmail, action.SenderDomain,
		string(action.ActionType), action.ActionDetails, action.InferredImportance, string(action.InferredCategory),
		origCategory, origImportance, origConfidence,
		action.ActionTakenAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback action: %w", err)
	}
	return nil
}

// Stop closes the database connection.
func (s *SQLiteStats) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
