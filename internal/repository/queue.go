package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stablecoin-index/internal/models"
)

// EnqueueJob inserts a pending job, deduped by (type, idempotency_key). A
// second enqueue of the same (type, key) is a no-op: the scheduler relies on
// this so its periodic timers can fire freely without producing duplicate
// work when a job is already pending or in flight.
func (r *Repository) EnqueueJob(ctx context.Context, jobType string, contractID uuid.UUID, idempotencyKey string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO app.jobs (type, contract_id, idempotency_key, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (type, idempotency_key) DO NOTHING
		RETURNING id`, jobType, contractID, idempotencyKey,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// ClaimJob atomically leases one pending job of jobType, or a failed job
// whose attempt count is still under maxAttempts, preferring the oldest.
// Returns a zero-value Job with ok=false if nothing is claimable.
func (r *Repository) ClaimJob(ctx context.Context, jobType, leasedBy string, leaseFor time.Duration, maxAttempts int) (models.Job, bool, error) {
	var j models.Job
	err := r.db.QueryRow(ctx, `
		UPDATE app.jobs SET
			status = 'active', leased_by = $2, lease_expires_at = NOW() + make_interval(secs => $3), updated_at = NOW()
		WHERE id = (
			SELECT id FROM app.jobs
			WHERE type = $1 AND status IN ('pending', 'failed') AND attempt < $4
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type, contract_id, idempotency_key, status, attempt, COALESCE(leased_by, ''), lease_expires_at, COALESCE(last_error, ''), created_at, updated_at`,
		jobType, leasedBy, leaseFor.Seconds(), maxAttempts,
	).Scan(&j.ID, &j.Type, &j.ContractID, &j.IdempotencyKey, &j.Status, &j.Attempt, &j.LeasedBy, &j.LeaseExpiresAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err == pgx.ErrNoRows {
		return models.Job{}, false, nil
	}
	return j, err == nil, err
}

func (r *Repository) CompleteJob(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.jobs SET status = 'completed', updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *Repository) FailJob(ctx context.Context, id int64, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.jobs SET status = 'failed', attempt = attempt + 1, last_error = $2, updated_at = NOW() WHERE id = $1`, id, errMsg)
	return err
}

// RecoverStuckJobs resets any job whose lease has expired back to 'failed'
// so ClaimJob can pick it up again (or retire it once attempt hits the
// caller's max). Run by the scheduler's stuck-job recovery timer.
func (r *Repository) RecoverStuckJobs(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE app.jobs SET status = 'failed', last_error = 'lease expired', updated_at = NOW()
		WHERE status = 'active' AND lease_expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ReconcileStartupJobs runs once when a worker process starts. It first
// forces every job still marked "active" to "failed": an active job can
// only mean a previous worker process died mid-lease, since a live worker
// would have completed or failed it before exiting. It then re-enqueues
// discover-contract/sync-contract jobs for every contract not already
// covered by a pending or active job, so a restart after a crash resumes
// exactly where the durable state says it should, without operator
// intervention.
func (r *Repository) ReconcileStartupJobs(ctx context.Context) (int, error) {
	if _, err := r.db.Exec(ctx, `
		UPDATE app.jobs SET status = 'failed', last_error = 'stuck from previous run', updated_at = NOW()
		WHERE status = 'active'`); err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO app.jobs (type, contract_id, idempotency_key, status)
		SELECT
			CASE WHEN s.status = 'pending' THEN 'discover-contract' ELSE 'sync-contract' END,
			c.id,
			CASE WHEN s.status = 'pending' THEN 'discover-' || c.id::text ELSE 'sync-' || c.id::text || '-' || s.last_synced_block::text END,
			'pending'
		FROM app.contracts c
		JOIN app.sync_state s ON s.contract_id = c.id
		WHERE c.status NOT IN ('paused')
		  AND NOT EXISTS (
			SELECT 1 FROM app.jobs j
			WHERE j.contract_id = c.id AND j.status IN ('pending', 'active')
		  )
		ON CONFLICT (type, idempotency_key) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) ListJobs(ctx context.Context, status string) ([]models.Job, error) {
	query := `SELECT id, type, contract_id, idempotency_key, status, attempt, COALESCE(leased_by, ''), lease_expires_at, COALESCE(last_error, ''), created_at, updated_at FROM app.jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT 500`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Job
	for rows.Next() {
		var j models.Job
		var leaseExpires *time.Time
		if err := rows.Scan(&j.ID, &j.Type, &j.ContractID, &j.IdempotencyKey, &j.Status, &j.Attempt, &j.LeasedBy, &leaseExpires, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		if leaseExpires != nil {
			j.LeaseExpiresAt = *leaseExpires
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
