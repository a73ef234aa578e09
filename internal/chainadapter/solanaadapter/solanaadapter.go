// Package solanaadapter implements chainadapter.Adapter for Solana via its
// JSON-RPC API, decoding SPL-Token mintTo/burn/transfer instructions. No
// Solana SDK appears anywhere in the retrieved example pack, so this speaks
// JSON-RPC directly over net/http.
package solanaadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"stablecoin-index/internal/chainerr"
	"stablecoin-index/internal/models"
	"stablecoin-index/internal/ratelimiter"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Adapter talks to one Solana JSON-RPC endpoint. Solana has no block-height
// concept in the EVM sense; "block height" here is the slot number, and a
// "contract address" is an SPL-Token mint address.
type Adapter struct {
	endpointID string
	url        string
	httpClient *http.Client
	limiter    *ratelimiter.Limiter
}

func New(endpointID, url string, limiter *ratelimiter.Limiter) *Adapter {
	return &Adapter{endpointID: endpointID, url: url, httpClient: &http.Client{Timeout: 30 * time.Second}, limiter: limiter}
}

func (a *Adapter) ChainType() models.ChainType { return models.ChainTypeSolana }

func (a *Adapter) Connect(ctx context.Context) error {
	_, err := a.CurrentBlock(ctx)
	return err
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx, a.endpointID); err != nil {
		return &chainerr.RateLimitStalled{Endpoint: a.endpointID, Waited: "120s"}
	}
	return nil
}

func (a *Adapter) call(ctx context.Context, method string, params []any, out any) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	reqBody := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return &chainerr.Permanent{Endpoint: a.url, Op: method, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return &chainerr.Permanent{Endpoint: a.url, Op: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &chainerr.Transient{Endpoint: a.url, Op: method, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &chainerr.Transient{Endpoint: a.url, Op: method, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return &chainerr.Transient{Endpoint: a.url, Op: method, Err: err}
	}
	if rpcResp.Error != nil {
		return &chainerr.Permanent{Endpoint: a.url, Op: method, Err: fmt.Errorf("%d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func (a *Adapter) CurrentBlock(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := a.call(ctx, "getSlot", []any{map[string]string{"commitment": "finalized"}}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func (a *Adapter) BlockTimestamp(ctx context.Context, height uint64) (time.Time, error) {
	var ts int64
	if err := a.call(ctx, "getBlockTime", []any{height}, &ts); err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts, 0).UTC(), nil
}

// CreationBlock checks through getAccountInfo that the mint account exists,
// then returns the lowest slot among one getSignaturesForAddress page (up to
// the 1000 most recent signatures), or the current slot when that page is
// empty. No binary search over slots is made.
func (a *Adapter) CreationBlock(ctx context.Context, address string) (uint64, error) {
	hi, err := a.CurrentBlock(ctx)
	if err != nil {
		return 0, err
	}
	existsNow, err := a.accountExists(ctx, address)
	if err != nil {
		return 0, err
	}
	if !existsNow {
		return 0, &chainerr.DataIntegrity{Detail: fmt.Sprintf("mint %s not found on chain", address)}
	}
	// getAccountInfo has no historical-slot parameter on standard JSON-RPC
	// nodes without an archive/geyser add-on, so the earliest signature for
	// the mint via getSignaturesForAddress is used as the creation proxy.
	var sigs []struct {
		Slot uint64 `json:"slot"`
	}
	if err := a.call(ctx, "getSignaturesForAddress", []any{address, map[string]any{"limit": 1000}}, &sigs); err != nil {
		return 0, err
	}
	if len(sigs) == 0 {
		return hi, nil
	}
	earliest := sigs[0].Slot
	for _, s := range sigs {
		if s.Slot < earliest {
			earliest = s.Slot
		}
	}
	return earliest, nil
}

func (a *Adapter) accountExists(ctx context.Context, address string) (bool, error) {
	var out struct {
		Value json.RawMessage `json:"value"`
	}
	if err := a.call(ctx, "getAccountInfo", []any{address, map[string]string{"encoding": "jsonParsed"}}, &out); err != nil {
		return false, err
	}
	return len(out.Value) > 0 && string(out.Value) != "null", nil
}

type mintParsedInfo struct {
	Decimals int    `json:"decimals"`
	Supply   string `json:"supply"`
}

func (a *Adapter) getMintInfo(ctx context.Context, address string) (mintParsedInfo, error) {
	var out struct {
		Value struct {
			Data struct {
				Parsed struct {
					Info mintParsedInfo `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := a.call(ctx, "getAccountInfo", []any{address, map[string]string{"encoding": "jsonParsed"}}, &out); err != nil {
		return mintParsedInfo{}, err
	}
	return out.Value.Data.Parsed.Info, nil
}

func (a *Adapter) TokenDecimals(ctx context.Context, address string) (int, error) {
	info, err := a.getMintInfo(ctx, address)
	if err != nil {
		return 0, err
	}
	return info.Decimals, nil
}

func (a *Adapter) TotalSupply(ctx context.Context, address string, atHeight uint64) (*big.Int, error) {
	// getAccountInfo always reads the current finalized slot; Solana JSON-RPC
	// has no standard mechanism for a historical token-supply read.
	info, err := a.getMintInfo(ctx, address)
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(info.Supply, 10)
	if !ok {
		return nil, &chainerr.Permanent{Endpoint: a.url, Op: "getAccountInfo", Err: fmt.Errorf("malformed supply %q", info.Supply)}
	}
	return v, nil
}

type parsedInstruction struct {
	Program string `json:"program"`
	Parsed  struct {
		Type string `json:"type"`
		Info struct {
			Mint        string `json:"mint"`
			Source      string `json:"source"`
			Destination string `json:"destination"`
			Authority   string `json:"authority"`
			Amount      string `json:"amount"`
		} `json:"info"`
	} `json:"parsed"`
}

type getTransactionResult struct {
	Slot uint64 `json:"slot"`
	Meta struct {
		Fee uint64 `json:"fee"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			Instructions []parsedInstruction `json:"instructions"`
			AccountKeys  []struct {
				Pubkey string `json:"pubkey"`
			} `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// TransferEvents scans confirmed transactions' parsed SPL-Token instructions
// for the given mint between [fromHeight, toHeight) slots. Solana has no
// native "logs for address in range" call; the adapter reads one
// getSignaturesForAddress page (the 1000 most recent signatures for the
// mint) and fetches each transaction whose slot is in range. Older
// signatures are not paged through.
func (a *Adapter) TransferEvents(ctx context.Context, address string, fromHeight, toHeight uint64) ([]models.Transfer, error) {
	var sigs []struct {
		Signature string `json:"signature"`
		Slot      uint64 `json:"slot"`
	}
	if err := a.call(ctx, "getSignaturesForAddress", []any{address, map[string]any{"limit": 1000}}, &sigs); err != nil {
		return nil, err
	}
	out := make([]models.Transfer, 0)
	for _, s := range sigs {
		if s.Slot < fromHeight || s.Slot >= toHeight {
			continue
		}
		var tx getTransactionResult
		if err := a.call(ctx, "getTransaction", []any{s.Signature, map[string]string{"encoding": "jsonParsed", "maxSupportedTransactionVersion": "0"}}, &tx); err != nil {
			return out, err
		}
		for i, instr := range tx.Transaction.Message.Instructions {
			if instr.Program != "spl-token" || instr.Parsed.Info.Mint != address {
				continue
			}
			amount, ok := new(big.Int).SetString(instr.Parsed.Info.Amount, 10)
			if !ok {
				continue
			}
			switch instr.Parsed.Type {
			case "transfer", "transferChecked":
				out = append(out, models.Transfer{
					BlockHeight: s.Slot, TxHash: s.Signature, LogIndex: uint(i),
					From: instr.Parsed.Info.Source, To: instr.Parsed.Info.Destination,
					Amount: amount, Kind: "transfer",
				})
			case "mintTo", "mintToChecked":
				out = append(out, models.Transfer{
					BlockHeight: s.Slot, TxHash: s.Signature, LogIndex: uint(i),
					From: "", To: instr.Parsed.Info.Destination,
					Amount: amount, Kind: "mint",
				})
			case "burn", "burnChecked":
				out = append(out, models.Transfer{
					BlockHeight: s.Slot, TxHash: s.Signature, LogIndex: uint(i),
					From: instr.Parsed.Info.Source, To: "",
					Amount: amount, Kind: "burn",
				})
			}
		}
	}
	return out, nil
}

// MintBurnEvents is empty: mintTo/burn instructions are already classified
// by TransferEvents via the parsed instruction type.
func (a *Adapter) MintBurnEvents(ctx context.Context, address string, fromHeight, toHeight uint64) ([]models.Transfer, error) {
	return nil, nil
}

func (a *Adapter) TransactionFee(ctx context.Context, txHash string) (models.Fee, error) {
	var tx getTransactionResult
	err := chainerr.Retry(ctx, func() error {
		return a.call(ctx, "getTransaction", []any{txHash, map[string]string{"encoding": "jsonParsed", "maxSupportedTransactionVersion": "0"}}, &tx)
	})
	if err != nil {
		return models.Fee{}, err
	}
	payer := ""
	if len(tx.Transaction.Message.AccountKeys) > 0 {
		payer = tx.Transaction.Message.AccountKeys[0].Pubkey
	}
	return models.Fee{
		BlockHeight: tx.Slot,
		TxHash:      txHash,
		Payer:       payer,
		Amount:      new(big.Int).SetUint64(tx.Meta.Fee),
	}, nil
}

// TransactionFees falls back to sequential calls; Solana's JSON-RPC has no
// bulk getTransaction method. A hash that fails all of TransactionFee's
// retries records a zero fee rather than aborting the rest of the batch.
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
