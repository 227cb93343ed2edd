package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/infra/storage"
)

// DefaultReportTTL is how long a report body is kept.
const DefaultReportTTL = 24 * time.Hour

// FailureRepo implements storage.FailureRepository using Redis.
// Report ids live in a sorted set scored by report time; bodies are JSON
// strings with a TTL. Ids older than the TTL are trimmed from the index.
type FailureRepo struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
}

// NewFailureRepo creates a new Redis-backed failure repository.
func NewFailureRepo(client *Client, prefix string, ttl time.Duration) *FailureRepo {
	if prefix == "" {
		prefix = "redeliver"
	}
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &FailureRepo{
		rdb:    client.rdb,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
		log:    slog.Default().With("component", "redis.failure_repo"),
	}
}

// Key helpers
func (r *FailureRepo) indexKey() string {
	return fmt.Sprintf("%s:failure_reports", r.prefix)
}

func (r *FailureRepo) reportKey(id string) string {
	return fmt.Sprintf("%s:failure_report:%s", r.prefix, id)
}

// trim queues removal of index entries whose body has outlived the TTL.
func (r *FailureRepo) trim(ctx context.Context, pipe redis.Pipeliner) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	pipe.ZRemRangeByScore(ctx, r.indexKey(), "-inf", strconv.FormatInt(cutoff, 10))
}

// Add stores a report.
func (r *FailureRepo) Add(ctx context.Context, report *domain.FailureReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal failure report: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.reportKey(report.ID), data, r.ttl)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(report.ReportedAt.UnixMilli()),
			Member: report.ID,
		})
		r.trim(ctx, pipe)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add failure report: %w", err)
	}
	return nil
}

// Recent returns the newest reports first. Ids whose body has expired are
// pruned from the index.
func (r *FailureRepo) Recent(ctx context.Context, limit int) ([]*domain.FailureReport, error) {
	limit = storage.NormalizeLimit(limit)

	ids, err := r.rdb.ZRevRange(ctx, r.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	reports := make([]*domain.FailureReport, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, r.reportKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			if err := r.rdb.ZRem(ctx, r.indexKey(), id).Err(); err != nil {
				r.log.Warn("Failed to prune expired report id", "id", id, "error", err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get failure report: %w", err)
		}

		var report domain.FailureReport
		if err := json.Unmarshal(data, &report); err != nil {
			r.log.Warn("Skipping unreadable failure report", "id", id, "error", err)
			continue
		}
		reports = append(reports, &report)
	}

	return reports, nil
}

// Count returns the number of reports still within the TTL.
func (r *FailureRepo) Count(ctx context.Context) (int, error) {
	var card *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.trim(ctx, pipe)
		card = pipe.ZCard(ctx, r.indexKey())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(card.Val()), nil
}
