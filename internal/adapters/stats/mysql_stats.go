package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

const mysqlTimeFormat = "2006-01-02 15:04:05"

// MySQLStats is a MySQL implementation of the StatsRepository interface.
type MySQLStats struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStats connects to MySQL at dsn and ensures the schema exists.
func NewMySQLStats(dsn string, logger *zap.Logger) (*MySQLStats, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sender_stats (
			account_id VARCHAR(64) NOT NULL,
			sender_email VARCHAR(255) NOT NULL,
			total_emails INT NOT NULL,
			total_replies INT NOT NULL,
			total_archived INT NOT NULL,
			total_deleted INT NOT NULL,
			total_moved INT NOT NULL,
			reply_rate DOUBLE NOT NULL,
			archive_rate DOUBLE NOT NULL,
			delete_rate DOUBLE NOT NULL,
			average_importance DOUBLE NOT NULL,
			avg_time_to_reply_hours DOUBLE,
			preferred_category VARCHAR(32) NOT NULL,
			first_seen_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (account_id, sender_email)
		)`,
		`CREATE TABLE IF NOT EXISTS domain_stats (
			account_id VARCHAR(64) NOT NULL,
			domain VARCHAR(255) NOT NULL,
			total_emails INT NOT NULL,
			total_replies INT NOT NULL,
			total_archived INT NOT NULL,
			total_moved INT NOT NULL,
			reply_rate DOUBLE NOT NULL,
			archive_rate DOUBLE NOT NULL,
			average_importance DOUBLE NOT NULL,
			avg_time_to_reply_hours DOUBLE,
			preferred_category VARCHAR(32) NOT NULL,
			first_seen_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (account_id, domain)
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_actions (
			id VARCHAR(36) PRIMARY KEY,
			account_id VARCHAR(64) NOT NULL,
			email_id VARCHAR(128) NOT NULL,
			sender_email VARCHAR(255) NOT NULL,
			sender_domain VARCHAR(255) NOT NULL,
			action_type VARCHAR(32) NOT NULL,
			action_details VARCHAR(255),
			inferred_importance DOUBLE NOT NULL,
			inferred_category VARCHAR(32) NOT NULL,
			original_category VARCHAR(32),
			original_importance DOUBLE,
			original_confidence DOUBLE,
			action_taken_at DATETIME NOT NULL,
			INDEX idx_feedback_sender (account_id, sender_email)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStats{db: db, logger: logger}, nil
}

// GetSenderStats retrieves the row for (accountID, senderEmail).
func (s *MySQLStats) GetSenderStats(ctx context.Context, accountID, senderEmail string) (*core.SenderStatistics, error) {
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
	if row.FirstSeenAt, err = time.Parse(mysqlTimeFormat, firstSeen); err != nil {
		return nil, fmt.Errorf("failed to parse first_seen_at: %w", err)
	}
	if row.UpdatedAt, err = time.Parse(mysqlTimeFormat, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return row, nil
}

// GetDomainStats retrieves the row for (accountID, domain).
func (s *MySQLStats) GetDomainStats(ctx context.Context, accountID, domain string) (*core.DomainStatistics, error) {
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
	if row.FirstSeenAt, err = time.Parse(mysqlTimeFormat, firstSeen); err != nil {
		return nil, fmt.Errorf("failed to parse first_seen_at: %w", err)
	}
	if row.UpdatedAt, err = time.Parse(mysqlTimeFormat, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return row, nil
}

// UpsertSenderStats writes the full sender row.
func (s *MySQLStats) UpsertSenderStats(ctx context.Context, stats *core.SenderStatistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sender_stats (
			account_id, sender_email, total_emails, total_replies,
			total_archived, total_deleted, total_moved,
			reply_rate, archive_rate, delete_rate,
			average_importance, avg_time_to_reply_hours, preferred_category,
			first_seen_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			total_emails = VALUES(total_emails),
			total_replies = VALUES(total_replies),
			total_archived = VALUES(total_archived),
			total_deleted = VALUES(total_deleted),
			total_moved = VALUES(total_moved),
			reply_rate = VALUES(reply_rate),
			archive_rate = VALUES(archive_rate),
			delete_rate = VALUES(delete_rate),
			average_importance = VALUES(average_importance),
			avg_time_to_reply_hours = VALUES(avg_time_to_reply_hours),
			preferred_category = VALUES(preferred_category),
			updated_at = VALUES(updated_at)
	`,
		stats.AccountID, stats.SenderEmail, stats.TotalEmailsReceived, stats.TotalReplies,
		stats.TotalArchived, stats.TotalDeleted, stats.TotalMoved,
		stats.ReplyRate, stats.ArchiveRate, stats.DeleteRate,
		stats.AverageImportance, nullableFloat(stats.AvgTimeToReplyHours), string(stats.PreferredCategory),
		stats.FirstSeenAt.Format(mysqlTimeFormat), stats.UpdatedAt.Format(mysqlTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sender stats: %w", err)
	}
	return nil
}

// UpsertDomainStats writes the full domain row.
func (s *MySQLStats) UpsertDomainStats(ctx context.Context, stats *core.DomainStatistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_stats (
			account_id, domain, total_emails, total_replies,
			total_archived, total_moved,
			reply_rate, archive_rate,
			average_importance, avg_time_to_reply_hours, preferred_category,
			first_seen_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			total_emails = VALUES(total_emails),
			total_replies = VALUES(total_replies),
			total_archived = VALUES(total_archived),
			total_moved = VALUES(total_moved),
			reply_rate = VALUES(reply_rate),
			archive_rate = VALUES(archive_rate),
			average_importance = VALUES(average_importance),
			avg_time_to_reply_hours = VALUES(avg_time_to_reply_hours),
			preferred_category = VALUES(preferred_category),
			updated_at = VALUES(updated_at)
	`,
		stats.AccountID, stats.Domain, stats.TotalEmailsReceived, stats.TotalReplies,
		stats.TotalArchived, stats.TotalMoved,
		stats.ReplyRate, stats.ArchiveRate,
		stats.AverageImportance, nullableFloat(stats.AvgTimeToReplyHours), string(stats.PreferredCategory),
		stats.FirstSeenAt.Format(mysqlTimeFormat), stats.UpdatedAt.Format(mysqlTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert domain stats: %w", err)
	}
	return nil
}

// AppendFeedback appends one audit record.
func (s *MySQLStats) AppendFeedback(ctx context.Context, action *core.FeedbackAction) error {
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
		action.ActionTakenAt.Format(mysqlTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback action: %w", err)
	}
	return nil
}

// Stop closes the database connection.
func (s *MySQLStats) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
