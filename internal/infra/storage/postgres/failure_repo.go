package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

// FailureRepo implements storage.FailureRepository using PostgreSQL.
type FailureRepo struct {
	db *DB
}

// NewFailureRepo creates a new PostgreSQL failure repository.
func NewFailureRepo(db *DB) *FailureRepo {
	return &FailureRepo{db: db}
}

type failureRow struct {
	ID         string         `db:"id"`
	Function   string         `db:"function"`
	EventID    string         `db:"event_id"`
	Message    string         `db:"message"`
	ErrorType  string         `db:"error_type"`
	Stack      string         `db:"stack"`
	Causes     pq.StringArray `db:"causes"`
	Retry      bool           `db:"retry"`
	Attempt    int            `db:"attempt"`
	ReportedAt time.Time      `db:"reported_at"`
}

// Add stores a report. Re-adding the same id is a no-op.
func (r *FailureRepo) Add(ctx context.Context, report *domain.FailureReport) error {
	query := `
		INSERT INTO failure_reports
			(id, function, event_id, message, error_type, stack, causes, retry, attempt, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	f := report.Failure
	// causes is NOT NULL and pq sends a nil slice as NULL.
	causes := f.Causes
	if causes == nil {
		causes = []string{}
	}
	_, err := r.db.ExecContext(
		ctx,
		query,
		report.ID,
		f.Function,
		f.EventID,
		f.Message,
		f.Type,
		f.Stack,
		pq.Array(causes),
		f.Retry,
		f.Attempt,
		report.ReportedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add failure report: %w", err)
	}
	return nil
}

// Recent returns the newest reports first.
func (r *FailureRepo) Recent(ctx context.Context, limit int) ([]*domain.FailureReport, error) {
	query := `
		SELECT id, function, event_id, message, error_type, stack, causes, retry, attempt, reported_at
		FROM failure_reports
		ORDER BY reported_at DESC
		LIMIT $1
	`

	var rows []failureRow
	if err := r.db.SelectContext(ctx, &rows, query, storage.NormalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list failure reports: %w", err)
	}

	reports := make([]*domain.FailureReport, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, &domain.FailureReport{
			ID: row.ID,
			Failure: domain.Failure{
				Function: row.Function,
				EventID:  row.EventID,
				Message:  row.Message,
				Type:     row.ErrorType,
				Stack:    row.Stack,
				Causes:   []string(row.Causes),
				Retry:    row.Retry,
				Attempt:  row.Attempt,
			},
			ReportedAt: row.ReportedAt,
		})
	}
	return reports, nil
}

// Count returns the number of stored reports.
func (r *FailureRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM failure_reports`); err != nil {
		return 0, fmt.Errorf("failed to count failure reports: %w", err)
	}
	return count, nil
}
