// Package rollup implements the Rollup Engine (C4): idempotent aggregation
// from per-block rows up through 1d, 10d, 100d and 1000d buckets.
//
// Grounded on the teacher's ingester.DailyStatsWorker, which calls a single
// repository method per range and treats the whole operation as idempotent
// by construction (upsert, never insert-only). The coarser buckets here
// extend that same idempotent-upsert shape one level further, rather than
// introducing a separate rollup algorithm per period.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the subset of repository.Repository the rollup engine needs.
type Repository interface {
	RefreshDailyMetrics(ctx context.Context, contractID uuid.UUID, fromHeight, toHeight uint64) error
	RefreshRollups(ctx context.Context, contractID uuid.UUID, anchorDay time.Time) error
}

type Engine struct {
	repo Repository
}

func New(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// AggregateRange refreshes daily metrics for every day touched by
// [fromHeight, toHeight), then refreshes the 10d/100d/1000d buckets that
// contain the current day. Coarser buckets for earlier days are not
// recomputed by this call, even when the daily rows under them changed.
func (e *Engine) AggregateRange(ctx context.Context, contractID uuid.UUID, fromHeight, toHeight uint64) error {
	if toHeight <= fromHeight {
		return nil
	}
	if err := e.repo.RefreshDailyMetrics(ctx, contractID, fromHeight, toHeight); err != nil {
		return fmt.Errorf("refresh daily metrics %d-%d: %w", fromHeight, toHeight, err)
	}
	if err := e.repo.RefreshRollups(ctx, contractID, time.Now().UTC()); err != nil {
		return fmt.Errorf("refresh rollups: %w", err)
	}
	return nil
}
