package tronadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stablecoin-index/internal/chainerr"
)

func TestCurrentBlockParsesNowBlock(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallet/getnowblock" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"block_header": map[string]any{
				"raw_data": map[string]any{"number": 12345, "timestamp": 1700000000000},
			},
		})
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	height, err := a.CurrentBlock(context.Background())
	if err != nil {
		t.Fatalf("CurrentBlock: %v", err)
	}
	if height != 12345 {
		t.Fatalf("height=%d want 12345", height)
	}
}

func TestPostClassifiesServerErrorsAsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	_, err := a.CurrentBlock(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*chainerr.Transient); !ok {
		t.Fatalf("expected *chainerr.Transient, got %T", err)
	}
}

func TestPostClassifiesClientErrorsAsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	_, err := a.CurrentBlock(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*chainerr.Permanent); !ok {
		t.Fatalf("expected *chainerr.Permanent, got %T", err)
	}
}

func TestTransferEventsClassifiesMintAndBurn(t *testing.T) {
	t.Parallel()

	zero := "410000000000000000000000000000000000000000"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"block_number":   10,
					"transaction_id": "tx-mint",
					"event_index":    0,
					"event_name":     "Transfer",
					"result":         map[string]any{"from": zero, "to": "user1", "value": "100"},
				},
				{
					"block_number":   11,
					"transaction_id": "tx-burn",
					"event_index":    0,
					"event_name":     "Transfer",
					"result":         map[string]any{"from": "user1", "to": zero, "value": "50"},
				},
				{
					"block_number":   12,
					"transaction_id": "tx-xfer",
					"event_index":    0,
					"event_name":     "Transfer",
					"result":         map[string]any{"from": "user1", "to": "user2", "value": "25"},
				},
			},
		})
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	transfers, err := a.TransferEvents(context.Background(), "contract-1", 10, 13)
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
	if kinds["tx-mint"] != "mint" {
		t.Errorf("tx-mint kind=%s want mint", kinds["tx-mint"])
	}
	if kinds["tx-burn"] != "burn" {
		t.Errorf("tx-burn kind=%s want burn", kinds["tx-burn"])
	}
	if kinds["tx-xfer"] != "transfer" {
		t.Errorf("tx-xfer kind=%s want transfer", kinds["tx-xfer"])
	}
}

func TestTransferEventsFiltersOutOfRangeBlocks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"block_number": 5, "transaction_id": "tx-before", "result": map[string]any{"from": "a", "to": "b", "value": "1"}},
				{"block_number": 15, "transaction_id": "tx-in", "result": map[string]any{"from": "a", "to": "b", "value": "1"}},
				{"block_number": 20, "transaction_id": "tx-after", "result": map[string]any{"from": "a", "to": "b", "value": "1"}},
			},
		})
	}))
	defer srv.Close()

	a := New("ep-1", srv.URL, nil)
	transfers, err := a.TransferEvents(context.Background(), "contract-1", 10, 20)
	if err != nil {
		t.Fatalf("TransferEvents: %v", err)
	}
	if len(transfers) != 1 || transfers[0].TxHash != "tx-in" {
		t.Fatalf("got %v, want only tx-in", transfers)
	}
}
