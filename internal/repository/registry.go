package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stablecoin-index/internal/models"
)

func (r *Repository) CreateCompany(ctx context.Context, name string) (models.Company, error) {
	var c models.Company
	err := r.db.QueryRow(ctx, `
		INSERT INTO app.companies (name) VALUES ($1)
		RETURNING id, name, created_at`, name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	return c, err
}

func (r *Repository) ListCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM app.companies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CreateStablecoin(ctx context.Context, companyID uuid.UUID, symbol, name string) (models.Stablecoin, error) {
	var s models.Stablecoin
	err := r.db.QueryRow(ctx, `
		INSERT INTO app.stablecoins (company_id, symbol, name) VALUES ($1, $2, $3)
		RETURNING id, company_id, symbol, name, created_at`, companyID, symbol, name,
	).Scan(&s.ID, &s.CompanyID, &s.Symbol, &s.Name, &s.CreatedAt)
	return s, err
}

func (r *Repository) ListStablecoins(ctx context.Context) ([]models.Stablecoin, error) {
	rows, err := r.db.Query(ctx, `SELECT id, company_id, symbol, name, created_at FROM app.stablecoins ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Stablecoin
	for rows.Next() {
		var s models.Stablecoin
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.Symbol, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) CreateNetwork(ctx context.Context, name string, chainType models.ChainType, chainID string) (models.Network, error) {
	var n models.Network
	err := r.db.QueryRow(ctx, `
		INSERT INTO app.networks (name, chain_type, chain_id) VALUES ($1, $2, $3)
		RETURNING id, name, chain_type, chain_id, created_at`, name, chainType, chainID,
	).Scan(&n.ID, &n.Name, &n.ChainType, &n.ChainID, &n.CreatedAt)
	return n, err
}

func (r *Repository) ListNetworks(ctx context.Context) ([]models.Network, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, chain_type, chain_id, created_at FROM app.networks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Network
	for rows.Next() {
		var n models.Network
		if err := rows.Scan(&n.ID, &n.Name, &n.ChainType, &n.ChainID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) GetNetwork(ctx context.Context, id uuid.UUID) (models.Network, error) {
	var n models.Network
	err := r.db.QueryRow(ctx, `SELECT id, name, chain_type, chain_id, created_at FROM app.networks WHERE id = $1`, id).
		Scan(&n.ID, &n.Name, &n.ChainType, &n.ChainID, &n.CreatedAt)
	return n, err
}

// UpsertEndpoint inserts or updates an RPC endpoint by (network_id, url),
// used by the seeding tool so re-running a seed file is idempotent.
func (r *Repository) UpsertEndpoint(ctx context.Context, networkID uuid.UUID, url string, rateLimit float64, priority int) (models.RpcEndpoint, error) {
	var e models.RpcEndpoint
	err := r.db.QueryRow(ctx, `
		INSERT INTO app.rpc_endpoints (network_id, url, rate_limit, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (network_id, url) DO UPDATE SET
			rate_limit = EXCLUDED.rate_limit,
			priority = EXCLUDED.priority
		RETURNING id, network_id, url, rate_limit, priority, disabled, created_at`,
		networkID, url, rateLimit, priority,
	).Scan(&e.ID, &e.NetworkID, &e.URL, &e.RateLimit, &e.Priority, &e.Disabled, &e.CreatedAt)
	return e, err
}

func (r *Repository) ListEndpoints(ctx context.Context, networkID uuid.UUID) ([]models.RpcEndpoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, network_id, url, rate_limit, priority, disabled, created_at
		FROM app.rpc_endpoints WHERE network_id = $1 AND disabled = FALSE
		ORDER BY priority ASC`, networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RpcEndpoint
	for rows.Next() {
		var e models.RpcEndpoint
		if err := rows.Scan(&e.ID, &e.NetworkID, &e.URL, &e.RateLimit, &e.Priority, &e.Disabled, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) DisableEndpoint(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE app.rpc_endpoints SET disabled = TRUE WHERE id = $1`, id)
	return err
}

func (r *Repository) CreateContract(ctx context.Context, stablecoinID, networkID uuid.UUID, address string) (models.Contract, error) {
	var c models.Contract
	err := r.db.QueryRow(ctx, `
		INSERT INTO app.contracts (stablecoin_id, network_id, address)
		VALUES ($1, $2, $3)
		RETURNING id, stablecoin_id, network_id, address, decimals, creation_block, status, COALESCE(last_error, ''), created_at, updated_at`,
		stablecoinID, networkID, address,
	).Scan(&c.ID, &c.StablecoinID, &c.NetworkID, &c.Address, &c.Decimals, &c.CreationBlock, &c.Status, &c.LastError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO app.sync_state (contract_id, status) VALUES ($1, 'pending')`, c.ID)
	return c, err
}

func (r *Repository) GetContract(ctx context.Context, id uuid.UUID) (models.Contract, error) {
	var c models.Contract
	err := r.db.QueryRow(ctx, `
		SELECT id, stablecoin_id, network_id, address, decimals, creation_block, status, COALESCE(last_error, ''), created_at, updated_at
		FROM app.contracts WHERE id = $1`, id,
	).Scan(&c.ID, &c.StablecoinID, &c.NetworkID, &c.Address, &c.Decimals, &c.CreationBlock, &c.Status, &c.LastError, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repository) ListContracts(ctx context.Context) ([]models.Contract, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, stablecoin_id, network_id, address, decimals, creation_block, status, COALESCE(last_error, ''), created_at, updated_at
		FROM app.contracts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Contract
	for rows.Next() {
		var c models.Contract
		if err := rows.Scan(&c.ID, &c.StablecoinID, &c.NetworkID, &c.Address, &c.Decimals, &c.CreationBlock, &c.Status, &c.LastError, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) SetContractDiscovered(ctx context.Context, id uuid.UUID, decimals int, creationBlock uint64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.contracts SET decimals = $2, creation_block = $3, status = 'syncing', updated_at = NOW()
		WHERE id = $1`, id, decimals, creationBlock)
	return err
}

func (r *Repository) SetContractError(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.contracts SET status = 'error', last_error = $2, updated_at = NOW() WHERE id = $1`, id, errMsg)
	return err
}

// ResetContract wipes all derived data for a contract and rewinds its cursor
// to its creation block, for the operator-driven resetContract operation.
func (r *Repository) ResetContract(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM app.block_addresses WHERE contract_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM app.block_rows WHERE contract_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM app.metrics WHERE contract_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM app.jobs WHERE contract_id = $1`, id); err != nil {
		return err
	}
	var creationBlock uint64
	if err := tx.QueryRow(ctx, `SELECT creation_block FROM app.contracts WHERE id = $1`, id).Scan(&creationBlock); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE app.sync_state SET last_synced_block = $2, status = 'pending', last_error = NULL, updated_at = NOW()
		WHERE contract_id = $1`, id, creationBlock); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE app.contracts SET status = 'discovered', last_error = NULL, updated_at = NOW() WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetSyncState(ctx context.Context, contractID uuid.UUID) (models.SyncState, error) {
	var s models.SyncState
	err := r.db.QueryRow(ctx, `
		SELECT contract_id, last_synced_block, status, COALESCE(last_error, ''), updated_at
		FROM app.sync_state WHERE contract_id = $1`, contractID,
	).Scan(&s.ContractID, &s.LastSyncedBlock, &s.Status, &s.LastError, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return models.SyncState{ContractID: contractID.String(), Status: "pending"}, nil
	}
	return s, err
}

// UpdateSyncStateBootstrap sets the initial cursor once discovery resolves a
// contract's creation block, moving it from "pending" to "syncing" only if
// the cursor has never been advanced, so re-running discovery on an
// already-syncing contract cannot rewind its progress.
func (r *Repository) UpdateSyncStateBootstrap(ctx context.Context, contractID uuid.UUID, fromHeight uint64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.sync_state SET last_synced_block = $2, status = 'syncing', updated_at = NOW()
		WHERE contract_id = $1 AND status = 'pending'`, contractID, fromHeight)
	return err
}

// MarkSynced flips a contract's sync_state to "synced" once its cursor has
// caught up to the confirmed chain head. The stuck-contract recovery check
// only acts on "syncing" rows, so a synced contract is never flagged as
// stuck; catchUp does not skip synced contracts.
func (r *Repository) MarkSynced(ctx context.Context, contractID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.sync_state SET status = 'synced', last_error = NULL, updated_at = NOW() WHERE contract_id = $1`, contractID)
	return err
}

func (r *Repository) UpdateSyncState(ctx context.Context, contractID uuid.UUID, lastSyncedBlock uint64, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.sync_state SET last_synced_block = $2, status = $3, updated_at = NOW() WHERE contract_id = $1`,
		contractID, lastSyncedBlock, status)
	return err
}

func (r *Repository) SetSyncError(ctx context.Context, contractID uuid.UUID, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE app.sync_state SET status = 'error', last_error = $2, updated_at = NOW() WHERE contract_id = $1`,
		contractID, errMsg)
	return err
}

// RecoverStuckSyncStates flips any sync_state wedged in "syncing" for more
// than 2 hours with no active job working it back to "error", so a worker
// crash between claiming a sync job and its lease expiring does not strand
// a contract forever: catchUp's "error" handling will retry it on the next
// tick.
func (r *Repository) RecoverStuckSyncStates(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE app.sync_state SET status = 'error', last_error = 'stuck syncing state', updated_at = NOW()
		WHERE status = 'syncing' AND updated_at < NOW() - INTERVAL '2 hours'
		  AND NOT EXISTS (
			SELECT 1 FROM app.jobs j WHERE j.contract_id = app.sync_state.contract_id AND j.status = 'active'
		  )`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
