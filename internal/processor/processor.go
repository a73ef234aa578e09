// Package processor implements the Contract Processor (C3): the
// discover -> sync state machine that walks one contract's chain history in
// bounded block-range batches, aggregates transfer/mint/burn/fee activity
// per block, and commits each batch atomically.
//
// The batch loop is grounded on the teacher's ingester.Service.process
// (fetch-then-atomic-save over a bounded window) and its fee/transfer
// dedup on the teacher's token_worker.go leg-pairing approach, adapted from
// pairing withdraw/deposit legs to deduping zero-address Transfer legs into
// mint/burn classifications.
package processor

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/google/uuid"

	"stablecoin-index/internal/chainadapter"
	"stablecoin-index/internal/models"
)

// Repository is the subset of repository.Repository the processor needs,
// kept narrow so tests can supply a fake.
type Repository interface {
	GetContract(ctx context.Context, id uuid.UUID) (models.Contract, error)
	SetContractDiscovered(ctx context.Context, id uuid.UUID, decimals int, creationBlock uint64) error
	SetContractError(ctx context.Context, id uuid.UUID, errMsg string) error
	GetSyncState(ctx context.Context, contractID uuid.UUID) (models.SyncState, error)
	SetSyncError(ctx context.Context, contractID uuid.UUID, errMsg string) error
	CommitBatch(ctx context.Context, contractID uuid.UUID, blocks []models.BlockRow, addresses []models.BlockAddress, newCursor uint64) error
	UpdateSyncStateBootstrap(ctx context.Context, contractID uuid.UUID, fromHeight uint64) error
	MarkSynced(ctx context.Context, contractID uuid.UUID) error
}

// Processor drives one contract through discover -> sync using a single
// chain adapter for that contract's network.
type Processor struct {
	repo       Repository
	adapter    chainadapter.Adapter
	batchSize  uint64 // B: max blocks fetched per adapter query
	confirmLag uint64 // blocks to stay behind chain head, avoids unconfirmed reads
}

// Config bounds the processor's batch behavior. BatchSize is the spec's `B`:
// the max block-range span per adapter query.
type Config struct {
	BatchSize  uint64
	ConfirmLag uint64
}

func New(repo Repository, adapter chainadapter.Adapter, cfg Config) *Processor {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	return &Processor{repo: repo, adapter: adapter, batchSize: cfg.BatchSize, confirmLag: cfg.ConfirmLag}
}

// Discover resolves a newly-registered contract's decimals and creation
// block, then marks it ready for Sync. Idempotent: safe to re-run on a
// contract already past discovery.
func (p *Processor) Discover(ctx context.Context, contractID uuid.UUID) error {
	contract, err := p.repo.GetContract(ctx, contractID)
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}

	decimals, err := p.adapter.TokenDecimals(ctx, contract.Address)
	if err != nil {
		p.recordFailure(ctx, contractID, err)
		return fmt.Errorf("token decimals: %w", err)
	}

	creationBlock, err := p.adapter.CreationBlock(ctx, contract.Address)
	if err != nil {
		p.recordFailure(ctx, contractID, err)
		return fmt.Errorf("creation block: %w", err)
	}

	if err := p.repo.SetContractDiscovered(ctx, contractID, decimals, creationBlock); err != nil {
		return fmt.Errorf("persist discovery: %w", err)
	}
	if err := p.repo.UpdateSyncStateBootstrap(ctx, contractID, creationBlock); err != nil {
		return fmt.Errorf("bootstrap sync state: %w", err)
	}
	log.Printf("[processor] %s discovered: decimals=%d creation_block=%d", contract.Address, decimals, creationBlock)
	return nil
}

// SyncOneBatch advances a contract's cursor by at most one batch of up to
// batchSize blocks, staying confirmLag blocks behind the chain head. Returns
// the number of blocks advanced (0 if already caught up to the confirmed
// head, which callers treat as "nothing to do this tick").
func (p *Processor) SyncOneBatch(ctx context.Context, contractID uuid.UUID) (uint64, error) {
	contract, err := p.repo.GetContract(ctx, contractID)
	if err != nil {
		return 0, fmt.Errorf("load contract: %w", err)
	}
	state, err := p.repo.GetSyncState(ctx, contractID)
	if err != nil {
		return 0, fmt.Errorf("load sync state: %w", err)
	}

	head, err := p.adapter.CurrentBlock(ctx)
	if err != nil {
		p.recordFailure(ctx, contractID, err)
		return 0, fmt.Errorf("current block: %w", err)
	}
	if head <= p.confirmLag {
		return 0, nil
	}
	confirmedHead := head - p.confirmLag

	from := state.LastSyncedBlock
	if from == 0 {
		from = contract.CreationBlock
	}
	if from >= confirmedHead {
		if state.Status != "synced" {
			if err := p.repo.MarkSynced(ctx, contractID); err != nil {
				return 0, fmt.Errorf("mark synced: %w", err)
			}
		}
		return 0, nil
	}

	to := from + p.batchSize
	if to > confirmedHead {
		to = confirmedHead
	}

	blocks, addresses, err := p.fetchAndAggregate(ctx, contract, from, to)
	if err != nil {
		p.recordSyncFailure(ctx, contractID, err)
		return 0, err
	}

	if err := p.repo.CommitBatch(ctx, contractID, blocks, addresses, to); err != nil {
		p.recordSyncFailure(ctx, contractID, err)
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	return to - from, nil
}

// feeKey dedups fee attribution within a batch: a transaction that touches
// the same contract in multiple events must only be charged its fee once.
type feeKey struct {
	contractID string
	txHash     string
}

func (p *Processor) fetchAndAggregate(ctx context.Context, contract models.Contract, from, to uint64) ([]models.BlockRow, []models.BlockAddress, error) {
	transfers, err := p.adapter.TransferEvents(ctx, contract.Address, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("transfer events: %w", err)
	}
	mintBurn, err := p.adapter.MintBurnEvents(ctx, contract.Address, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("mint/burn events: %w", err)
	}
	transfers = append(transfers, mintBurn...)

	// Every height in [from, to) gets a block_rows entry, even ones with no
	// activity this batch, so the rollup engine never has to distinguish
	// "not yet synced" from "synced with nothing to report".
	blockIdx := make(map[uint64]*models.BlockRow, to-from)
	for h := from; h < to; h++ {
		blockIdx[h] = &models.BlockRow{
			ContractID:     contract.ID,
			BlockHeight:    h,
			MintAmount:     big.NewInt(0),
			BurnAmount:     big.NewInt(0),
			TransferVolume: big.NewInt(0),
			FeeTotal:       big.NewInt(0),
		}
	}
	touched := make(map[uint64]bool)
	addrSeen := make(map[string]*models.BlockAddress) // key: height|address
	feesSeen := make(map[feeKey]bool)
	var feeTxHashes []string

	ensureBlock := func(height uint64) *models.BlockRow {
		row, ok := blockIdx[height]
		if !ok {
			row = &models.BlockRow{
				ContractID:     contract.ID,
				BlockHeight:    height,
				MintAmount:     big.NewInt(0),
				BurnAmount:     big.NewInt(0),
				TransferVolume: big.NewInt(0),
				FeeTotal:       big.NewInt(0),
			}
			blockIdx[height] = row
		}
		touched[height] = true
		return row
	}

	for _, t := range transfers {
		row := ensureBlock(t.BlockHeight)
		switch t.Kind {
		case "mint":
			row.MintCount++
			row.MintAmount.Add(row.MintAmount, t.Amount)
		case "burn":
			row.BurnCount++
			row.BurnAmount.Add(row.BurnAmount, t.Amount)
		default:
			row.TransferCount++
			row.TransferVolume.Add(row.TransferVolume, t.Amount)
		}

		if t.From != "" {
			addAddressActivity(addrSeen, t.BlockHeight, t.From, true, false)
		}
		if t.To != "" {
			addAddressActivity(addrSeen, t.BlockHeight, t.To, false, true)
		}

		key := feeKey{contractID: contract.ID, txHash: t.TxHash}
		if !feesSeen[key] {
			feesSeen[key] = true
			feeTxHashes = append(feeTxHashes, t.TxHash)
		}
	}

	if len(feeTxHashes) > 0 {
		fees, err := p.adapter.TransactionFees(ctx, feeTxHashes)
		if err != nil {
			return nil, nil, fmt.Errorf("transaction fees: %w", err)
		}
		for _, f := range fees {
			row := ensureBlock(f.BlockHeight)
			row.FeeTotal.Add(row.FeeTotal, f.Amount)
		}
	}

	// Only blocks touched by a transfer, mint/burn, or fee this batch get a
	// timestamp and totalSupply lookup; an untouched block keeps a nil
	// timestamp, matching the spec's distinction between an empty block and
	// an unsynced one.
	for height := range touched {
		row := blockIdx[height]
		ts, err := p.adapter.BlockTimestamp(ctx, height)
		if err != nil {
			return nil, nil, fmt.Errorf("block timestamp %d: %w", height, err)
		}
		row.Timestamp = &ts
		supply, err := p.adapter.TotalSupply(ctx, contract.Address, height)
		if err != nil {
			// A totalSupply read failing for one block must not abort the
			// whole batch; leave it nil and let downstream consumers carry
			// forward the nearest known snapshot.
			log.Printf("[processor] %s totalSupply at %d failed: %v", contract.Address, height, err)
		} else {
			row.TotalSupply = supply
		}
	}

	blocks := make([]models.BlockRow, 0, len(blockIdx))
	for _, row := range blockIdx {
		blocks = append(blocks, *row)
	}
	addresses := make([]models.BlockAddress, 0, len(addrSeen))
	for _, a := range addrSeen {
		addresses = append(addresses, *a)
	}
	return blocks, addresses, nil
}

func addAddressActivity(seen map[string]*models.BlockAddress, height uint64, address string, isSender, isReceiver bool) {
	key := fmt.Sprintf("%d|%s", height, address)
	entry, ok := seen[key]
	if !ok {
		entry = &models.BlockAddress{BlockHeight: height, Address: address}
		seen[key] = entry
	}
	entry.IsSender = entry.IsSender || isSender
	entry.IsReceiver = entry.IsReceiver || isReceiver
}

func (p *Processor) recordFailure(ctx context.Context, contractID uuid.UUID, err error) {
	p.repo.SetContractError(ctx, contractID, err.Error())
}

func (p *Processor) recordSyncFailure(ctx context.Context, contractID uuid.UUID, err error) {
	p.repo.SetSyncError(ctx, contractID, err.Error())
}
