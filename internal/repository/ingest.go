package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stablecoin-index/internal/models"
)

// CommitBatch atomically persists one synced block range for a contract:
// every per-block row, every address-activity row, and the advanced cursor,
// in a single transaction. Either the whole batch lands or none of it does,
// so a crash mid-batch never leaves the cursor ahead of the data it names.
func (r *Repository) CommitBatch(ctx context.Context, contractID uuid.UUID, blocks []models.BlockRow, addresses []models.BlockAddress, newCursor uint64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch commit: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(blocks) > 0 {
		batch := &pgx.Batch{}
		for _, b := range blocks {
			batch.Queue(`
				INSERT INTO app.block_rows (
					contract_id, block_height, timestamp, transfer_count, mint_count, burn_count,
					mint_amount, burn_amount, transfer_volume, fee_total, total_supply
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (contract_id, block_height) DO UPDATE SET
					timestamp = EXCLUDED.timestamp,
					transfer_count = EXCLUDED.transfer_count,
					mint_count = EXCLUDED.mint_count,
					burn_count = EXCLUDED.burn_count,
					mint_amount = EXCLUDED.mint_amount,
					burn_amount = EXCLUDED.burn_amount,
					transfer_volume = EXCLUDED.transfer_volume,
					fee_total = EXCLUDED.fee_total,
					total_supply = EXCLUDED.total_supply`,
				contractID, b.BlockHeight, b.Timestamp, b.TransferCount, b.MintCount, b.BurnCount,
				bigOrZero(b.MintAmount), bigOrZero(b.BurnAmount), bigOrZero(b.TransferVolume), bigOrZero(b.FeeTotal), bigOrNull(b.TotalSupply),
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range blocks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert block_rows: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close block_rows batch: %w", err)
		}
	}

	if len(addresses) > 0 {
		batch := &pgx.Batch{}
		for _, a := range addresses {
			batch.Queue(`
				INSERT INTO app.block_addresses (contract_id, block_height, address, is_sender, is_receiver)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (contract_id, block_height, address) DO UPDATE SET
					is_sender = app.block_addresses.is_sender OR EXCLUDED.is_sender,
					is_receiver = app.block_addresses.is_receiver OR EXCLUDED.is_receiver`,
				contractID, a.BlockHeight, a.Address, a.IsSender, a.IsReceiver,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range addresses {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert block_addresses: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close block_addresses batch: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE app.sync_state SET last_synced_block = $2, status = 'syncing', last_error = NULL, updated_at = NOW()
		WHERE contract_id = $1 AND last_synced_block < $2`, contractID, newCursor); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	return tx.Commit(ctx)
}

// GetBlockRowsInRange returns the per-block summaries for a contract over
// [fromHeight, toHeight). The rollup engine does not call it:
// RefreshDailyMetrics reads app.block_rows directly in SQL.
func (r *Repository) GetBlockRowsInRange(ctx context.Context, contractID uuid.UUID, fromHeight, toHeight uint64) ([]models.BlockRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT block_height, timestamp, transfer_count, mint_count, burn_count,
			mint_amount, burn_amount, transfer_volume, fee_total, total_supply
		FROM app.block_rows
		WHERE contract_id = $1 AND block_height >= $2 AND block_height < $3
		ORDER BY block_height ASC`, contractID, fromHeight, toHeight)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.BlockRow
	for rows.Next() {
		var b models.BlockRow
		var mint, burn, vol, fee string
		var supply *string
		if err := rows.Scan(&b.BlockHeight, &b.Timestamp, &b.TransferCount, &b.MintCount, &b.BurnCount,
			&mint, &burn, &vol, &fee, &supply); err != nil {
			return nil, err
		}
		b.ContractID = contractID.String()
		b.MintAmount = parseBig(mint)
		b.BurnAmount = parseBig(burn)
		b.TransferVolume = parseBig(vol)
		b.FeeTotal = parseBig(fee)
		if supply != nil {
			b.TotalSupply = parseBig(*supply)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
