package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"stablecoin-index/internal/models"
)

// fakeRepo implements queue.Repository for tests, without any Postgres
// connection, the same narrow-interface pattern used for processor/rollup.
type fakeRepo struct {
	jobs          map[string]int64
	nextID        int64
	contracts     []models.Contract
	states        map[string]models.SyncState
	claimQueue    []models.Job
	completed     []int64
	failed        map[int64]string
	recoverCount  int
	stuckSyncs    int
	reconcileWant int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		jobs:   make(map[string]int64),
		states: make(map[string]models.SyncState),
		failed: make(map[int64]string),
	}
}

func (r *fakeRepo) EnqueueJob(ctx context.Context, jobType string, contractID uuid.UUID, idempotencyKey string) (int64, error) {
	if id, exists := r.jobs[idempotencyKey]; exists {
		_ = id
		return 0, nil
	}
	r.nextID++
	r.jobs[idempotencyKey] = r.nextID
	return r.nextID, nil
}

func (r *fakeRepo) ClaimJob(ctx context.Context, jobType, leasedBy string, leaseFor time.Duration, maxAttempts int) (models.Job, bool, error) {
	for i, j := range r.claimQueue {
		if j.Type == jobType {
			r.claimQueue = append(r.claimQueue[:i], r.claimQueue[i+1:]...)
			return j, true, nil
		}
	}
	return models.Job{}, false, nil
}

func (r *fakeRepo) CompleteJob(ctx context.Context, id int64) error {
	r.completed = append(r.completed, id)
	return nil
}

func (r *fakeRepo) FailJob(ctx context.Context, id int64, errMsg string) error {
	r.failed[id] = errMsg
	return nil
}

func (r *fakeRepo) RecoverStuckJobs(ctx context.Context) (int, error) {
	return r.recoverCount, nil
}

func (r *fakeRepo) RecoverStuckSyncStates(ctx context.Context) (int, error) {
	return r.stuckSyncs, nil
}

func (r *fakeRepo) ReconcileStartupJobs(ctx context.Context) (int, error) {
	return r.reconcileWant, nil
}

func (r *fakeRepo) ListContracts(ctx context.Context) ([]models.Contract, error) {
	return r.contracts, nil
}

func (r *fakeRepo) GetSyncState(ctx context.Context, contractID uuid.UUID) (models.SyncState, error) {
	return r.states[contractID.String()], nil
}

func TestEnqueueDedupesByIdempotencyKey(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	s := New(repo)
	contractID := uuid.New()

	if err := s.Enqueue(context.Background(), JobSyncContract, contractID, "key-1"); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := s.Enqueue(context.Background(), JobSyncContract, contractID, "key-1"); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if len(repo.jobs) != 1 {
		t.Fatalf("expected exactly one distinct job, got %d", len(repo.jobs))
	}
}

func TestCatchUpSkipsPausedButRetriesErrored(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	active := uuid.New()
	paused := uuid.New()
	erroring := uuid.New()
	repo.contracts = []models.Contract{
		{ID: active.String(), Status: "active"},
		{ID: paused.String(), Status: "paused"},
		{ID: erroring.String(), Status: "active"},
	}
	repo.states[active.String()] = models.SyncState{Status: "syncing", LastSyncedBlock: 10}
	repo.states[erroring.String()] = models.SyncState{Status: "error", LastSyncedBlock: 20}

	s := New(repo)
	s.catchUp(context.Background())

	if len(repo.jobs) != 2 {
		t.Fatalf("expected jobs for the active and errored contracts, got %d (%v)", len(repo.jobs), repo.jobs)
	}
}

func TestCatchUpEnqueuesDiscoverForContractsInPendingState(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	contractID := uuid.New()
	repo.contracts = []models.Contract{{ID: contractID.String(), Status: "discovered"}}
	repo.states[contractID.String()] = models.SyncState{Status: "pending"}

	s := New(repo)
	s.catchUp(context.Background())

	found := false
	for key := range repo.jobs {
		if key[:len(JobDiscoverContract)] == JobDiscoverContract {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a discover-contract job key, got keys %v", repo.jobs)
	}
}

func TestDrainCompletesJobOnSuccessAndFailsOnError(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	s := New(repo)

	okJob := models.Job{ID: 1, Type: "test-ok"}
	failJob := models.Job{ID: 2, Type: "test-fail"}
	repo.claimQueue = []models.Job{okJob, failJob}

	ctx, cancel := context.WithCancel(context.Background())
	processed := make(chan struct{}, 2)

	s.RegisterHandler("test-ok", func(ctx context.Context, job models.Job) error {
		processed <- struct{}{}
		return nil
	})
	s.RegisterHandler("test-fail", func(ctx context.Context, job models.Job) error {
		processed <- struct{}{}
		return errors.New("handler exploded")
	})

	go s.drain(ctx, "test-ok", s.handlers["test-ok"])
	go s.drain(ctx, "test-fail", s.handlers["test-fail"])

	for i := 0; i < 2; i++ {
		select {
		case <-processed:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs to be processed")
		}
	}
	cancel()

	time.Sleep(10 * time.Millisecond)

	if len(repo.completed) != 1 || repo.completed[0] != 1 {
		t.Fatalf("completed=%v want [1]", repo.completed)
	}
	if msg, ok := repo.failed[2]; !ok || msg == "" {
		t.Fatalf("expected job 2 to be recorded as failed, got %v", repo.failed)
	}
}
