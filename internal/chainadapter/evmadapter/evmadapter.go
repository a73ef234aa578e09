// Package evmadapter implements chainadapter.Adapter for EVM-family chains
// via go-ethereum's JSON-RPC client.
package evmadapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"stablecoin-index/internal/chainerr"
	"stablecoin-index/internal/models"
	"stablecoin-index/internal/ratelimiter"
)

// transferEventSig is keccak256("Transfer(address,address,uint256)").
const transferEventSig = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

var erc20ABI abi.ABI

func init() {
	const erc20JSON = `[
		{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
		{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"}
	]`
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20JSON))
	if err != nil {
		panic(fmt.Sprintf("evmadapter: invalid embedded ERC-20 ABI: %v", err))
	}
}

// Adapter talks to one EVM JSON-RPC endpoint, rate limited through limiter.
type Adapter struct {
	endpointID string
	url        string
	client     *ethclient.Client
	limiter    *ratelimiter.Limiter
}

func New(endpointID, url string, limiter *ratelimiter.Limiter) *Adapter {
	return &Adapter{endpointID: endpointID, url: url, limiter: limiter}
}

func (a *Adapter) ChainType() models.ChainType { return models.ChainTypeEVM }

func (a *Adapter) Connect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, a.url)
	if err != nil {
		return &chainerr.ConfigError{Detail: fmt.Sprintf("dial %s: %v", a.url, err)}
	}
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return &chainerr.Transient{Endpoint: a.url, Op: "ChainID", Err: err}
	}
	a.client = client
	return nil
}

func (a *Adapter) wait(ctx context.Context, op string) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx, a.endpointID); err != nil {
		return &chainerr.RateLimitStalled{Endpoint: a.endpointID, Waited: "120s"}
	}
	return nil
}

func (a *Adapter) CurrentBlock(ctx context.Context) (uint64, error) {
	if err := a.wait(ctx, "eth_blockNumber"); err != nil {
		return 0, err
	}
	h, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, &chainerr.Transient{Endpoint: a.url, Op: "eth_blockNumber", Err: err}
	}
	return h, nil
}

func (a *Adapter) BlockTimestamp(ctx context.Context, height uint64) (time.Time, error) {
	if err := a.wait(ctx, "eth_getBlockByNumber"); err != nil {
		return time.Time{}, err
	}
	hdr, err := a.client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return time.Time{}, &chainerr.Transient{Endpoint: a.url, Op: "eth_getBlockByNumber", Err: err}
	}
	return time.Unix(int64(hdr.Time), 0).UTC(), nil
}

// CreationBlock finds the first block at which address has code, by binary
// search over eth_getCode against [0, CurrentBlock].
func (a *Adapter) CreationBlock(ctx context.Context, address string) (uint64, error) {
	addr := common.HexToAddress(address)
	hi, err := a.CurrentBlock(ctx)
	if err != nil {
		return 0, err
	}
	lo := uint64(0)
	hasCodeAt := func(h uint64) (bool, error) {
		if err := a.wait(ctx, "eth_getCode"); err != nil {
			return false, err
		}
		code, err := a.client.CodeAt(ctx, addr, new(big.Int).SetUint64(h))
		if err != nil {
			return false, &chainerr.Transient{Endpoint: a.url, Op: "eth_getCode", Err: err}
		}
		return len(code) > 0, nil
	}
	ok, err := hasCodeAt(hi)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &chainerr.DataIntegrity{Detail: fmt.Sprintf("contract %s has no code at current head", address)}
	}
	for lo < hi {
		mid := lo + (hi-lo)/2
		has, err := hasCodeAt(mid)
		if err != nil {
			return 0, err
		}
		if has {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

func (a *Adapter) callUint256(ctx context.Context, address, method string, atHeight uint64) (*big.Int, error) {
	if err := a.wait(ctx, "eth_call"); err != nil {
		return nil, err
	}
	input, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, &chainerr.Permanent{Endpoint: a.url, Op: method, Err: err}
	}
	addr := common.HexToAddress(address)
	msg := ethereum.CallMsg{To: &addr, Data: input}
	var blockNum *big.Int
	if atHeight > 0 {
		blockNum = new(big.Int).SetUint64(atHeight)
	}
	out, err := a.client.CallContract(ctx, msg, blockNum)
	if err != nil {
		return nil, &chainerr.Transient{Endpoint: a.url, Op: method, Err: err}
	}
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return nil, &chainerr.Permanent{Endpoint: a.url, Op: method, Err: fmt.Errorf("unpack %s: %w", method, err)}
	}
	result, ok := vals[0].(*big.Int)
	if !ok {
		return nil, &chainerr.Permanent{Endpoint: a.url, Op: method, Err: fmt.Errorf("%s did not return uint256", method)}
	}
	return result, nil
}

func (a *Adapter) TokenDecimals(ctx context.Context, address string) (int, error) {
	v, err := a.callUint256(ctx, address, "decimals", 0)
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func (a *Adapter) TotalSupply(ctx context.Context, address string, atHeight uint64) (*big.Int, error) {
	return a.callUint256(ctx, address, "totalSupply", atHeight)
}

// TransferEvents fetches the Transfer log topic in [fromHeight, toHeight) and
// classifies each by zero-address detection on From/To.
func (a *Adapter) TransferEvents(ctx context.Context, address string, fromHeight, toHeight uint64) ([]models.Transfer, error) {
	if err := a.wait(ctx, "eth_getLogs"); err != nil {
		return nil, err
	}
	addr := common.HexToAddress(address)
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromHeight),
		ToBlock:   new(big.Int).SetUint64(toHeight - 1),
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{common.HexToHash(transferEventSig)}},
	}
	logs, err := a.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, &chainerr.Transient{Endpoint: a.url, Op: "eth_getLogs", Err: err}
	}
	zero := "0x0000000000000000000000000000000000000000"
	out := make([]models.Transfer, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) != 3 || len(l.Data) < 32 {
			continue
		}
		from := common.HexToAddress(l.Topics[1].Hex()).Hex()
		to := common.HexToAddress(l.Topics[2].Hex()).Hex()
		// Transfer's amount word is a fixed 32-byte uint256; decoding through
		// uint256.Int avoids big.Int's variable-length allocation on the hot
		// per-log path and matches how go-ethereum itself represents EVM words.
		amount := new(uint256.Int).SetBytes(l.Data[:32]).ToBig()
		kind := "transfer"
		if strings.EqualFold(from, zero) {
			kind = "mint"
		} else if strings.EqualFold(to, zero) {
			kind = "burn"
		}
		out = append(out, models.Transfer{
			BlockHeight: l.BlockNumber,
			TxHash:      l.TxHash.Hex(),
			LogIndex:    l.Index,
			From:        from,
			To:          to,
			Amount:      amount,
			Kind:        kind,
		})
	}
	return out, nil
}

// MintBurnEvents is empty for the standard ERC-20 ABI: EVM mint/burn
// detection happens entirely through zero-address Transfer legs, already
// covered by TransferEvents.
func (a *Adapter) MintBurnEvents(ctx context.Context, address string, fromHeight, toHeight uint64) ([]models.Transfer, error) {
	return nil, nil
}

func (a *Adapter) TransactionFee(ctx context.Context, txHash string) (models.Fee, error) {
	hash := common.HexToHash(txHash)
	var receipt *types.Receipt
	var tx *types.Transaction
	err := chainerr.Retry(ctx, func() error {
		if err := a.wait(ctx, "eth_getTransactionReceipt"); err != nil {
			return err
		}
		r, err := a.client.TransactionReceipt(ctx, hash)
		if err != nil {
			return &chainerr.Transient{Endpoint: a.url, Op: "eth_getTransactionReceipt", Err: err}
		}
		t, _, err := a.client.TransactionByHash(ctx, hash)
		if err != nil {
			return &chainerr.Transient{Endpoint: a.url, Op: "eth_getTransactionByHash", Err: err}
		}
		receipt, tx = r, t
		return nil
	})
	if err != nil {
		return models.Fee{}, err
	}
	gasPrice := effectiveGasPrice(tx, receipt)
	fee := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	payer := ""
	if err == nil {
		payer = from.Hex()
	}
	return models.Fee{
		BlockHeight: receipt.BlockNumber.Uint64(),
		TxHash:      txHash,
		Payer:       payer,
		Amount:      fee,
	}, nil
}

func effectiveGasPrice(tx *types.Transaction, receipt *types.Receipt) *big.Int {
	if receipt.EffectiveGasPrice != nil {
		return receipt.EffectiveGasPrice
	}
	return tx.GasPrice()
}

// TransactionFees falls back to sequential TransactionFee calls; standard
// EVM JSON-RPC has no bulk receipt-by-hash method. A hash that fails all of
// TransactionFee's retries records a zero fee rather than aborting the rest
// of the batch.
func (a *Adapter) TransactionFees(ctx context.Context, txHashes []string) ([]models.Fee, error) {
	out := make([]models.Fee, 0, len(txHashes))
	for _, h := range txHashes {
		fee, err := a.TransactionFee(ctx, h)
		if err != nil {
			out = append(out, models.Fee{TxHash: h, Amount: big.NewInt(0)})
			continue
		}
		out = append(out, fee)
	}
	return out, nil
}
