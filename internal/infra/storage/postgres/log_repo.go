package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

// LogRepo implements storage.LogRepository using PostgreSQL.
type LogRepo struct {
	db *DB
}

// NewLogRepo creates a new PostgreSQL decision log repository.
func NewLogRepo(db *DB) *LogRepo {
	return &LogRepo{db: db}
}

// Append stores one entry.
func (r *LogRepo) Append(ctx context.Context, entry *domain.LogEntry) error {
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO decision_log (function, outcome, event_id, age_ms, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.Function,
		string(entry.Outcome),
		entry.EventID,
		entry.AgeMs,
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (r *LogRepo) Recent(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	query := `
		SELECT id, function, outcome, event_id, age_ms, recorded_at
		FROM decision_log
		ORDER BY id DESC
		LIMIT $1
	`

	var rows []struct {
		ID         int64     `db:"id"`
		Function   string    `db:"function"`
		Outcome    string    `db:"outcome"`
		EventID    string    `db:"event_id"`
		AgeMs      int64     `db:"age_ms"`
		RecordedAt time.Time `db:"recorded_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, storage.NormalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}

	entries := make([]*domain.LogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &domain.LogEntry{
			ID:         row.ID,
			Function:   row.Function,
			Outcome:    domain.Outcome(row.Outcome),
			EventID:    row.EventID,
			AgeMs:      row.AgeMs,
			RecordedAt: row.RecordedAt,
		})
	}
	return entries, nil
}
