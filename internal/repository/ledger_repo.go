package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
)

// LedgerRepository persists per-attachment ingestion outcomes
type LedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sql.DB, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Record stores one outcome
func (r *LedgerRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO ingestion_ledger (
			message_uid, message_id, subject, filename, content_sha256,
			outcome, invoice_id, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.MessageUID,
		entry.MessageID,
		entry.Subject,
		entry.Filename,
		entry.ContentSHA256,
		entry.Outcome,
		entry.InvoiceID,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record ingestion outcome",
			zap.String("filename", entry.Filename),
			zap.String("outcome", string(entry.Outcome)),
			zap.Error(err))
		return fmt.Errorf("failed to record ingestion outcome: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get ledger entry ID: %w", err)
	}
	entry.ID = id
	return nil
}

// AppendedBefore reports whether an attachment with this digest from the
// same message already produced a row
func (r *LedgerRepository) AppendedBefore(ctx context.Context, messageID, digest string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM ingestion_ledger
		WHERE message_id = ? AND content_sha256 = ? AND outcome = ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, messageID, digest, models.OutcomeAppended).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return count > 0, nil
}

// Recent returns the newest entries first
func (r *LedgerRepository) Recent(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, message_uid, message_id, subject, filename, content_sha256,
			outcome, invoice_id, error_message, created_at
		FROM ingestion_ledger
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		err := rows.Scan(
			&entry.ID,
			&entry.MessageUID,
			&entry.MessageID,
			&entry.Subject,
			&entry.Filename,
			&entry.ContentSHA256,
			&entry.Outcome,
			&entry.InvoiceID,
			&entry.ErrorMessage,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// CountByOutcome aggregates entries created at or after since
func (r *LedgerRepository) CountByOutcome(ctx context.Context, since time.Time) (map[models.Outcome]int, error) {
	query := `
		SELECT outcome, COUNT(*) FROM ingestion_ledger
		WHERE created_at >= ?
		GROUP BY outcome
	`

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Outcome]int)
	for rows.Next() {
		var (
			outcome models.Outcome
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = count
	}

	return counts, rows.Err()
}
