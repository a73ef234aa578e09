package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshDailyMetrics aggregates app.block_rows into 1d app.metrics rows for
// every UTC day touched by [fromHeight, toHeight). Idempotent: re-running
// over the same range recomputes the same totals via upsert, matching the
// teacher's RefreshDailyStatsRange contract.
//
// unique_senders/unique_receivers are computed exactly from app.block_addresses
// (distinct per day), not summed across blocks, so they stay correct even
// though the coarser rollups above 1d intentionally sum (and thus may
// over-count) unique counts across their window.
func (r *Repository) RefreshDailyMetrics(ctx context.Context, contractID uuid.UUID, fromHeight, toHeight uint64) error {
	_, err := r.db.Exec(ctx, `
		WITH touched_days AS (
			SELECT DISTINCT date_trunc('day', timestamp)::date AS day
			FROM app.block_rows
			WHERE contract_id = $1 AND block_height >= $2 AND block_height < $3
		),
		daily AS (
			SELECT
				date_trunc('day', br.timestamp)::date AS day,
				SUM(br.transfer_count) AS transfer_count,
				SUM(br.mint_count) AS mint_count,
				SUM(br.burn_count) AS burn_count,
				SUM(br.mint_amount) AS mint_amount,
				SUM(br.burn_amount) AS burn_amount,
				SUM(br.transfer_volume) AS transfer_volume,
				SUM(br.fee_total) AS fee_total,
				(array_agg(br.total_supply ORDER BY br.block_height DESC) FILTER (WHERE br.total_supply IS NOT NULL))[1] AS total_supply
			FROM app.block_rows br
			WHERE br.contract_id = $1 AND date_trunc('day', br.timestamp)::date IN (SELECT day FROM touched_days)
			GROUP BY 1
		),
		daily_addr AS (
			SELECT
				date_trunc('day', br.timestamp)::date AS day,
				COUNT(DISTINCT ba.address) FILTER (WHERE ba.is_sender) AS unique_senders,
				COUNT(DISTINCT ba.address) FILTER (WHERE ba.is_receiver) AS unique_receivers
			FROM app.block_addresses ba
			JOIN app.block_rows br ON br.contract_id = ba.contract_id AND br.block_height = ba.block_height
			WHERE ba.contract_id = $1 AND date_trunc('day', br.timestamp)::date IN (SELECT day FROM touched_days)
			GROUP BY 1
		)
		INSERT INTO app.metrics (
			contract_id, period, bucket_start, transfer_count, mint_count, burn_count,
			mint_amount, burn_amount, transfer_volume, fee_total, unique_senders, unique_receivers, total_supply, total_fees_usd
		)
		SELECT $1, '1d', d.day, d.transfer_count, d.mint_count, d.burn_count,
			d.mint_amount, d.burn_amount, d.transfer_volume, d.fee_total,
			COALESCE(a.unique_senders, 0), COALESCE(a.unique_receivers, 0), d.total_supply, 0
		FROM daily d
		LEFT JOIN daily_addr a ON a.day = d.day
		ON CONFLICT (contract_id, period, bucket_start) DO UPDATE SET
			transfer_count = EXCLUDED.transfer_count,
			mint_count = EXCLUDED.mint_count,
			burn_count = EXCLUDED.burn_count,
			mint_amount = EXCLUDED.mint_amount,
			burn_amount = EXCLUDED.burn_amount,
			transfer_volume = EXCLUDED.transfer_volume,
			fee_total = EXCLUDED.fee_total,
			unique_senders = EXCLUDED.unique_senders,
			unique_receivers = EXCLUDED.unique_receivers,
			total_supply = EXCLUDED.total_supply`,
		contractID, fromHeight, toHeight,
	)
	return err
}

// rollupWindows maps each coarse period to the finer period it is built from
// and the coarse bucket's width in days (ten finer buckets each).
var rollupWindows = []struct {
	period     string
	from       string
	bucketDays int
}{
	{"10d", "1d", 10},
	{"100d", "10d", 100},
	{"1000d", "100d", 1000},
}

// RefreshRollups re-derives the 10d/100d/1000d rollups that cover
// [anchorDay, anchorDay] from their source period, idempotently. Called
// after RefreshDailyMetrics so every rollup always reflects the latest
// underlying daily data. total_supply in a rolled-up row is a snapshot: the
// most recent non-null total_supply among the source rows in that window,
// never a sum, per the corrected semantics for this aggregate.
func (r *Repository) RefreshRollups(ctx context.Context, contractID uuid.UUID, anchorDay time.Time) error {
	for _, w := range rollupWindows {
		if err := r.refreshRollupPeriod(ctx, contractID, w.period, w.from, w.bucketDays, anchorDay); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) refreshRollupPeriod(ctx context.Context, contractID uuid.UUID, period, fromPeriod string, bucketDays int, anchorDay time.Time) error {
	_, err := r.db.Exec(ctx, `
		WITH bucket AS (
			-- Bucket boundaries are aligned to epoch-day integer division, not
			-- day-of-month, so a period never resets at a month end: the
			-- bucket floor is epoch_day - (epoch_day % bucketDays), expressed
			-- in date arithmetic since Postgres has no integer modulo on dates.
			SELECT (DATE '1970-01-01' + ((($4::date - DATE '1970-01-01') / $3) * $3) * INTERVAL '1 day')::date AS bucket_start
		),
		window_bounds AS (
			SELECT bucket_start, bucket_start + ($3 || ' days')::interval AS bucket_end FROM bucket
		),
		agg AS (
			SELECT
				SUM(m.transfer_count) AS transfer_count,
				SUM(m.mint_count) AS mint_count,
				SUM(m.burn_count) AS burn_count,
				SUM(m.mint_amount) AS mint_amount,
				SUM(m.burn_amount) AS burn_amount,
				SUM(m.transfer_volume) AS transfer_volume,
				SUM(m.fee_total) AS fee_total,
				SUM(m.unique_senders) AS unique_senders,
				SUM(m.unique_receivers) AS unique_receivers,
				(array_agg(m.total_supply ORDER BY m.bucket_start DESC) FILTER (WHERE m.total_supply IS NOT NULL))[1] AS total_supply
			FROM app.metrics m, window_bounds wb
			WHERE m.contract_id = $1 AND m.period = $2
			  AND m.bucket_start >= wb.bucket_start AND m.bucket_start < wb.bucket_end
		)
		INSERT INTO app.metrics (
			contract_id, period, bucket_start, transfer_count, mint_count, burn_count,
			mint_amount, burn_amount, transfer_volume, fee_total, unique_senders, unique_receivers, total_supply, total_fees_usd
		)
		SELECT $1, $5, wb.bucket_start, COALESCE(agg.transfer_count, 0), COALESCE(agg.mint_count, 0), COALESCE(agg.burn_count, 0),
			COALESCE(agg.mint_amount, 0), COALESCE(agg.burn_amount, 0), COALESCE(agg.transfer_volume, 0), COALESCE(agg.fee_total, 0),
			COALESCE(agg.unique_senders, 0), COALESCE(agg.unique_receivers, 0), agg.total_supply, 0
		FROM window_bounds wb, agg
		ON CONFLICT (contract_id, period, bucket_start) DO UPDATE SET
			transfer_count = EXCLUDED.transfer_count,
			mint_count = EXCLUDED.mint_count,
			burn_count = EXCLUDED.burn_count,
			mint_amount = EXCLUDED.mint_amount,
			burn_amount = EXCLUDED.burn_amount,
			transfer_volume = EXCLUDED.transfer_volume,
			fee_total = EXCLUDED.fee_total,
			unique_senders = EXCLUDED.unique_senders,
			unique_receivers = EXCLUDED.unique_receivers,
			total_supply = EXCLUDED.total_supply`,
		contractID, fromPeriod, bucketDays, anchorDay, period,
	)
	return err
}
