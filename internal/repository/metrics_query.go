package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stablecoin-index/internal/models"
)

// resolutionPeriods maps the query contract's resolution-in-seconds values
// to the period labels app.metrics rows are stored under.
var resolutionPeriods = map[int]string{
	86400:    "1d",
	864000:   "10d",
	8640000:  "100d",
	86400000: "1000d",
}

// AutoResolution picks a resolution in seconds for a [from, to) query span,
// per the query contract's auto mapping: <30 days -> 86400, <300 -> 864000,
// <3000 -> 8640000, else 86400000.
func AutoResolution(from, to time.Time) int {
	days := to.Sub(from).Hours() / 24
	switch {
	case days < 30:
		return 86400
	case days < 300:
		return 864000
	case days < 3000:
		return 8640000
	default:
		return 86400000
	}
}

// GetMetrics returns the rolled-up metrics rows for a contract at one period,
// most recent bucket first, for the API's read-only metrics view.
func (r *Repository) GetMetrics(ctx context.Context, contractID uuid.UUID, period string, limit int) ([]models.MetricsRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 90
	}
	rows, err := r.db.Query(ctx, `
		SELECT contract_id, period, bucket_start, transfer_count, mint_count, burn_count,
			mint_amount, burn_amount, transfer_volume, fee_total, unique_senders, unique_receivers,
			total_supply, total_fees_usd
		FROM app.metrics
		WHERE contract_id = $1 AND period = $2
		ORDER BY bucket_start DESC
		LIMIT $3`, contractID, period, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MetricsRow
	for rows.Next() {
		var m models.MetricsRow
		var cid uuid.UUID
		var mint, burn, vol, fee string
		var supply *string
		if err := rows.Scan(&cid, &m.Period, &m.BucketStart, &m.TransferCount, &m.MintCount, &m.BurnCount,
			&mint, &burn, &vol, &fee, &m.UniqueSenders, &m.UniqueReceivers, &supply, &m.TotalFeesUSD); err != nil {
			return nil, err
		}
		m.ContractID = cid.String()
		m.MintAmount = parseBig(mint)
		m.BurnAmount = parseBig(burn)
		m.TransferVolume = parseBig(vol)
		m.FeeTotal = parseBig(fee)
		if supply != nil {
			m.TotalSupply = parseBig(*supply)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMetricsByTicker implements the query contract's (ticker, from, to,
// resolution) read: every contract deployment of the stablecoin identified
// by ticker is summed per bucket, so a multi-chain stablecoin (the same
// symbol deployed on several networks) reports one combined series instead
// of one per chain. total_supply is summed across chains too: the global
// supply of a multi-chain stablecoin is the sum of its per-chain supplies.
func (r *Repository) GetMetricsByTicker(ctx context.Context, ticker string, from, to time.Time, resolutionSeconds int) ([]models.MetricsRow, error) {
	period, ok := resolutionPeriods[resolutionSeconds]
	if !ok {
		return nil, fmt.Errorf("unsupported resolution %ds", resolutionSeconds)
	}
	rows, err := r.db.Query(ctx, `
		SELECT m.bucket_start,
			SUM(m.transfer_count), SUM(m.mint_count), SUM(m.burn_count),
			SUM(m.mint_amount), SUM(m.burn_amount), SUM(m.transfer_volume), SUM(m.fee_total),
			SUM(m.unique_senders), SUM(m.unique_receivers),
			SUM(m.total_supply) FILTER (WHERE m.total_supply IS NOT NULL),
			SUM(m.total_fees_usd)
		FROM app.metrics m
		JOIN app.contracts c ON c.id = m.contract_id
		JOIN app.stablecoins s ON s.id = c.stablecoin_id
		WHERE s.symbol = $1 AND m.period = $2 AND m.bucket_start >= $3 AND m.bucket_start < $4
		GROUP BY m.bucket_start
		ORDER BY m.bucket_start ASC`, ticker, period, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MetricsRow
	for rows.Next() {
		var m models.MetricsRow
		var mint, burn, vol, fee string
		var supply *string
		if err := rows.Scan(&m.BucketStart, &m.TransferCount, &m.MintCount, &m.BurnCount,
			&mint, &burn, &vol, &fee, &m.UniqueSenders, &m.UniqueReceivers, &supply, &m.TotalFeesUSD); err != nil {
			return nil, err
		}
		m.Period = period
		m.MintAmount = parseBig(mint)
		m.BurnAmount = parseBig(burn)
		m.TransferVolume = parseBig(vol)
		m.FeeTotal = parseBig(fee)
		if supply != nil {
			m.TotalSupply = parseBig(*supply)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
