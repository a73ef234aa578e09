package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeRepo implements Repository for tests, the same narrow-interface-plus-
// fake shape the teacher uses for its ingester collaborators.
type fakeRepo struct {
	dailyCalls  int
	rollupCalls int
	dailyFrom   uint64
	dailyTo     uint64
	dailyErr    error
	rollupErr   error
}

func (f *fakeRepo) RefreshDailyMetrics(ctx context.Context, contractID uuid.UUID, fromHeight, toHeight uint64) error {
	f.dailyCalls++
	f.dailyFrom, f.dailyTo = fromHeight, toHeight
	return f.dailyErr
}

func (f *fakeRepo) RefreshRollups(ctx context.Context, contractID uuid.UUID, anchorDay time.Time) error {
	f.rollupCalls++
	return f.rollupErr
}

func TestAggregateRangeSkipsEmptyRange(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	e := New(repo)

	if err := e.AggregateRange(context.Background(), uuid.New(), 100, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.dailyCalls != 0 || repo.rollupCalls != 0 {
		t.Fatalf("expected no repo calls for empty range, got daily=%d rollup=%d", repo.dailyCalls, repo.rollupCalls)
	}
}

func TestAggregateRangeCallsBothStages(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	e := New(repo)

	if err := e.AggregateRange(context.Background(), uuid.New(), 10, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.dailyCalls != 1 || repo.rollupCalls != 1 {
		t.Fatalf("expected one call each, got daily=%d rollup=%d", repo.dailyCalls, repo.rollupCalls)
	}
	if repo.dailyFrom != 10 || repo.dailyTo != 20 {
		t.Fatalf("daily range=%d-%d want 10-20", repo.dailyFrom, repo.dailyTo)
	}
}

func TestAggregateRangeDailyErrorStopsBeforeRollup(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{dailyErr: errors.New("boom")}
	e := New(repo)

	if err := e.AggregateRange(context.Background(), uuid.New(), 10, 20); err == nil {
		t.Fatal("expected error")
	}
	if repo.rollupCalls != 0 {
		t.Fatalf("expected rollup to be skipped after daily error, got %d calls", repo.rollupCalls)
	}
}

func TestAggregateRangeRollupError(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{rollupErr: errors.New("boom")}
	e := New(repo)

	if err := e.AggregateRange(context.Background(), uuid.New(), 10, 20); err == nil {
		t.Fatal("expected error")
	}
}
