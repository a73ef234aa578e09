// Package models holds the plain data types shared by the repository, chain
// adapters, processor, rollup engine and API.
package models

import (
	"math/big"
	"time"
)

// ChainType identifies the family of RPC semantics an adapter speaks.
type ChainType string

const (
	ChainTypeEVM    ChainType = "evm"
	ChainTypeTron   ChainType = "tron"
	ChainTypeSolana ChainType = "solana"
)

// Network is a concrete chain deployment (e.g. "ethereum-mainnet", "tron-mainnet").
type Network struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ChainType ChainType `json:"chain_type"`
	ChainID   string    `json:"chain_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Company is the issuer a stablecoin belongs to (e.g. "Circle", "Tether").
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Stablecoin is a logical token (e.g. "USDC") that may be deployed on several networks.
type Stablecoin struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Contract is one on-chain deployment of a Stablecoin on a Network.
type Contract struct {
	ID            string    `json:"id"`
	StablecoinID  string    `json:"stablecoin_id"`
	NetworkID     string    `json:"network_id"`
	Address       string    `json:"address"`
	Decimals      int       `json:"decimals"`
	CreationBlock uint64    `json:"creation_block"`
	Status        string    `json:"status"` // discovered | syncing | active | paused | error
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RpcEndpoint is one RPC node usable to serve reads for a Network.
type RpcEndpoint struct {
	ID        string    `json:"id"`
	NetworkID string    `json:"network_id"`
	URL       string    `json:"url"`
	RateLimit float64   `json:"rate_limit_per_sec"`
	Priority  int       `json:"priority"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncState is the monotonic per-contract cursor over its own chain history.
type SyncState struct {
	ContractID      string    `json:"contract_id"`
	LastSyncedBlock uint64    `json:"last_synced_block"`
	Status          string    `json:"status"` // pending | syncing | synced | error
	LastError       string    `json:"last_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Transfer is a single ERC-20-style Transfer event observed on chain, already
// classified as a genuine transfer, a mint (from == zero address) or a burn
// (to == zero address).
type Transfer struct {
	ContractID  string   `json:"contract_id"`
	BlockHeight uint64   `json:"block_height"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint     `json:"log_index"`
	From        string   `json:"from_address"`
	To          string   `json:"to_address"`
	Amount      *big.Int `json:"-"`
	Kind        string   `json:"kind"` // transfer | mint | burn
}

// Fee is the network fee paid by a transaction that touched a tracked contract.
// Deduped by (ContractID, TxHash) within a batch before being attributed.
type Fee struct {
	ContractID  string   `json:"contract_id"`
	BlockHeight uint64   `json:"block_height"`
	TxHash      string   `json:"tx_hash"`
	Payer       string   `json:"payer"`
	Amount      *big.Int `json:"-"`
}

// BlockRow is the per-block aggregate summary for a contract.
type BlockRow struct {
	ContractID     string     `json:"contract_id"`
	BlockHeight    uint64     `json:"block_height"`
	Timestamp      *time.Time `json:"timestamp"`
	TransferCount  int64      `json:"transfer_count"`
	MintCount      int64      `json:"mint_count"`
	BurnCount      int64      `json:"burn_count"`
	MintAmount     *big.Int   `json:"-"`
	BurnAmount     *big.Int   `json:"-"`
	TransferVolume *big.Int   `json:"-"`
	FeeTotal       *big.Int   `json:"-"`
	TotalSupply    *big.Int   `json:"-"`
}

// BlockAddress records that an address was active (sent or received) in a
// given block for a contract; source of exact unique-address counts.
type BlockAddress struct {
	ContractID  string `json:"contract_id"`
	BlockHeight uint64 `json:"block_height"`
	Address     string `json:"address"`
	IsSender    bool   `json:"is_sender"`
	IsReceiver  bool   `json:"is_receiver"`
}

// MetricsRow is a daily or rolled-up (10d/100d/1000d) aggregate row.
type MetricsRow struct {
	ContractID      string    `json:"contract_id"`
	Period          string    `json:"period"` // "1d" | "10d" | "100d" | "1000d"
	BucketStart     time.Time `json:"bucket_start"`
	TransferCount   int64     `json:"transfer_count"`
	MintCount       int64     `json:"mint_count"`
	BurnCount       int64     `json:"burn_count"`
	MintAmount      *big.Int  `json:"-"`
	BurnAmount      *big.Int  `json:"-"`
	TransferVolume  *big.Int  `json:"-"`
	FeeTotal        *big.Int  `json:"-"`
	UniqueSenders   int64     `json:"unique_senders"`
	UniqueReceivers int64     `json:"unique_receivers"`
	TotalSupply     *big.Int  `json:"-"`
	TotalFeesUSD    float64   `json:"total_fees_usd"` // always 0, reserved
}

// Job is a durable unit of work owned by the scheduler (C5).
type Job struct {
	ID             int64     `json:"id"`
	Type           string    `json:"type"` // discover-contract | sync-contract | aggregate-metrics
	ContractID     string    `json:"contract_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         string    `json:"status"` // pending | active | completed | failed
	Attempt        int       `json:"attempt"`
	LeasedBy       string    `json:"leased_by,omitempty"`
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
