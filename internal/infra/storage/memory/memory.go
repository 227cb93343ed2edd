package memory

import (
	"context"
	"sync"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

// DefaultCapacity bounds each in-memory store.
const DefaultCapacity = 1000

// MemoryStorage keeps failure reports and log entries in bounded slices.
type MemoryStorage struct {
	capacity int
	failures []*domain.FailureReport
	entries  []*domain.LogEntry
	nextID   int64
	mu       sync.RWMutex
}

func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStorage{capacity: capacity}
}

// -----------------------------------------------------------------------------
// Failure Repository
// -----------------------------------------------------------------------------

type FailureRepo struct {
	store *MemoryStorage
}

func NewFailureRepo(store *MemoryStorage) *FailureRepo {
	return &FailureRepo{store: store}
}

func (r *FailureRepo) Add(ctx context.Context, report *domain.FailureReport) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *report
	r.store.failures = append(r.store.failures, &cp)
	if over := len(r.store.failures) - r.store.capacity; over > 0 {
		r.store.failures = r.store.failures[over:]
	}
	return nil
}

func (r *FailureRepo) Recent(ctx context.Context, limit int) ([]*domain.FailureReport, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	limit = storage.NormalizeLimit(limit)
	out := make([]*domain.FailureReport, 0, min(limit, len(r.store.failures)))
	for i := len(r.store.failures) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.store.failures[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *FailureRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.failures), nil
}

// -----------------------------------------------------------------------------
// Log Repository
// -----------------------------------------------------------------------------

type LogRepo struct {
	store *MemoryStorage
}

func NewLogRepo(store *MemoryStorage) *LogRepo {
	return &LogRepo{store: store}
}

func (r *LogRepo) Append(ctx context.Context, entry *domain.LogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.nextID++
	cp := *entry
	cp.ID = r.store.nextID
	r.store.entries = append(r.store.entries, &cp)
	if over := len(r.store.entries) - r.store.capacity; over > 0 {
		r.store.entries = r.store.entries[over:]
	}
	return nil
}

func (r *LogRepo) Recent(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	limit = storage.NormalizeLimit(limit)
	out := make([]*domain.LogEntry, 0, min(limit, len(r.store.entries)))
	for i := len(r.store.entries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.store.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}
