// Package chainadapter defines the uniform read interface every supported
// chain family (EVM, Tron, Solana) implements, so the contract processor
// never branches on chain type.
package chainadapter

import (
	"context"
	"math/big"
	"time"

	"stablecoin-index/internal/models"
)

// Adapter is the uniform per-chain read surface (C1). Implementations must be
// safe for concurrent use. Each implementation rate-limits its own RPC calls
// through the internal/ratelimiter.Limiter it is constructed with; callers
// do not call the limiter themselves.
type Adapter interface {
	// Connect validates the configured endpoint is reachable and speaks the
	// expected protocol version. Called once at adapter construction time.
	Connect(ctx context.Context) error

	// CurrentBlock returns the chain's latest known block height.
	CurrentBlock(ctx context.Context) (uint64, error)

	// BlockTimestamp returns the UTC timestamp of the given block height.
	BlockTimestamp(ctx context.Context, height uint64) (time.Time, error)

	// CreationBlock returns the height at which the given contract address
	// first had code/existed on chain. The EVM adapter binary-searches
	// eth_getCode up to CurrentBlock; the Tron and Solana adapters return
	// approximations described on their own methods.
	CreationBlock(ctx context.Context, address string) (uint64, error)

	// TokenDecimals returns the contract's `decimals()` value.
	TokenDecimals(ctx context.Context, address string) (int, error)

	// TotalSupply returns the contract's `totalSupply()` at the given block
	// height (the adapter's snapshot read, recorded by the processor on each
	// block row it touches). Adapters whose chain API has no historical read
	// return the current supply.
	TotalSupply(ctx context.Context, address string, atHeight uint64) (*big.Int, error)

	// TransferEvents returns every Transfer-family event emitted by address
	// in [fromHeight, toHeight), already classified as transfer/mint/burn by
	// zero-address detection on From/To.
	TransferEvents(ctx context.Context, address string, fromHeight, toHeight uint64) ([]models.Transfer, error)

	// MintBurnEvents returns mint/burn events emitted through a dedicated
	// Mint/Burn event (as opposed to a zero-address Transfer), for contracts
	// that use that convention. Implementations that only see zero-address
	// Transfers may return an empty slice; TransferEvents is authoritative.
	MintBurnEvents(ctx context.Context, address string, fromHeight, toHeight uint64) ([]models.Transfer, error)

	// TransactionFee returns the network fee paid by a single transaction.
	TransactionFee(ctx context.Context, txHash string) (models.Fee, error)

	// TransactionFees returns fees for many transactions in one round trip
	// where the underlying RPC supports batching; falls back to sequential
	// TransactionFee calls otherwise.
	TransactionFees(ctx context.Context, txHashes []string) ([]models.Fee, error)

	// ChainType reports which family this adapter implements.
	ChainType() models.ChainType
}

// ZeroAddress returns the chain-appropriate "null" address string used to
// detect mint (From == zero) and burn (To == zero) transfers.
func ZeroAddress(ct models.ChainType) string {
	switch ct {
	case models.ChainTypeEVM:
		return "0x0000000000000000000000000000000000000000"
	case models.ChainTypeTron:
		return "410000000000000000000000000000000000000000"
	case models.ChainTypeSolana:
		return "11111111111111111111111111111111"
	default:
		return ""
	}
}
