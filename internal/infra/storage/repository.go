package storage

import (
	"context"

	"github.com/vietddude/redeliver/internal/core/domain"
)

// DefaultListLimit is used when a caller asks for zero or fewer entries.
const DefaultListLimit = 10

// FailureRepository stores reports from the failure sink
type FailureRepository interface {
	// Add stores a failure report
	Add(ctx context.Context, report *domain.FailureReport) error

	// Recent returns the newest reports first
	Recent(ctx context.Context, limit int) ([]*domain.FailureReport, error)

	// Count returns the number of stored reports
	Count(ctx context.Context) (int, error)
}

// LogRepository stores the admission log trail
type LogRepository interface {
	// Append stores one log entry
	Append(ctx context.Context, entry *domain.LogEntry) error

	// Recent returns the newest entries first
	Recent(ctx context.Context, limit int) ([]*domain.LogEntry, error)
}

// NormalizeLimit applies DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
