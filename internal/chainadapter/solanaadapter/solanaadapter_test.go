package solanaadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stablecoin-index/internal/chainerr"
)

func rpcServer(t *testing.T, responses map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, ok := responses[req.Method]
		if !ok {
			t.Fatalf("unexpected method %q", req.Method)
		}
		resultBytes, _ := json.Marshal(result)
		json.NewEncoder(w).Encode(rpcResponse{Result: resultBytes})
	}))
}

func TestCurrentBlockReturnsSlot(t *testing.T) {
	t.Parallel()

	srv := rpcServer(t, map[string]any{"getSlot": 42})
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	slot, err := a.CurrentBlock(context.Background())
	if err != nil {
		t.Fatalf("CurrentBlock: %v", err)
	}
	if slot != 42 {
		t.Fatalf("slot=%d want 42", slot)
	}
}

func TestCallReturnsPermanentOnRPCError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: -32602, Message: "invalid params"}})
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	_, err := a.CurrentBlock(context.Background())
	if _, ok := err.(*chainerr.Permanent); !ok {
		t.Fatalf("expected *chainerr.Permanent, got %T (%v)", err, err)
	}
}

func TestCallReturnsTransientOnRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	_, err := a.CurrentBlock(context.Background())
	if _, ok := err.(*chainerr.Transient); !ok {
		t.Fatalf("expected *chainerr.Transient, got %T", err)
	}
}

func TestTransferEventsClassifiesTransferMintBurn(t *testing.T) {
	t.Parallel()

	sigs := []map[string]any{
		{"signature": "sig-transfer", "slot": 10},
		{"signature": "sig-mint", "slot": 11},
		{"signature": "sig-burn", "slot": 12},
	}
	txByHash := map[string]any{
		"sig-transfer": map[string]any{
			"slot": 10,
			"transaction": map[string]any{
				"message": map[string]any{
					"instructions": []map[string]any{
						{"program": "spl-token", "parsed": map[string]any{
							"type": "transfer",
							"info": map[string]any{"mint": "mint-addr", "source": "a", "destination": "b", "amount": "10"},
						}},
					},
				},
			},
		},
		"sig-mint": map[string]any{
			"slot": 11,
			"transaction": map[string]any{
				"message": map[string]any{
					"instructions": []map[string]any{
						{"program": "spl-token", "parsed": map[string]any{
							"type": "mintTo",
							"info": map[string]any{"mint": "mint-addr", "destination": "b", "amount": "20"},
						}},
					},
				},
			},
		},
		"sig-burn": map[string]any{
			"slot": 12,
			"transaction": map[string]any{
				"message": map[string]any{
					"instructions": []map[string]any{
						{"program": "spl-token", "parsed": map[string]any{
							"type": "burn",
							"info": map[string]any{"mint": "mint-addr", "source": "a", "amount": "5"},
						}},
					},
				},
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		var result any
		switch req.Method {
		case "getSignaturesForAddress":
			result = sigs
		case "getTransaction":
			sig, _ := req.Params[0].(string)
			result = txByHash[sig]
		}
		resultBytes, _ := json.Marshal(result)
		json.NewEncoder(w).Encode(rpcResponse{Result: resultBytes})
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	transfers, err := a.TransferEvents(context.Background(), "mint-addr", 10, 13)
	if err != nil {
		t.Fatalf("TransferEvents: %v", err)
	}
	if len(transfers) != 3 {
		t.Fatalf("got %d transfers, want 3", len(transfers))
	}
	kinds := map[string]string{}
	for _, tr := range transfers {
		kinds[tr.TxHash] = tr.Kind
	}
	if kinds["sig-transfer"] != "transfer" || kinds["sig-mint"] != "mint" || kinds["sig-burn"] != "burn" {
		t.Fatalf("unexpected kinds: %v", kinds)
	}
}
