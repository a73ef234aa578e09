package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"stablecoin-index/internal/models"
)

func TestWriteJSONSetsStatusAndBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusCreated)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["ok"] != "yes" {
		t.Fatalf("body=%v", body)
	}
}

func TestWriteErrorWrapsMessage(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, errors.New("bad input"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusBadRequest)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "bad input" {
		t.Fatalf("body=%v", body)
	}
}

func TestPathUUIDParsesRouteVar(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/contracts/11111111-1111-1111-1111-111111111111", nil)
	req = mux.SetURLVars(req, map[string]string{"contractID": "11111111-1111-1111-1111-111111111111"})

	id, err := pathUUID(req, "contractID")
	if err != nil {
		t.Fatalf("pathUUID: %v", err)
	}
	if id.String() != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("id=%s", id)
	}
}

func TestPathUUIDRejectsInvalid(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/contracts/not-a-uuid", nil)
	req = mux.SetURLVars(req, map[string]string{"contractID": "not-a-uuid"})

	if _, err := pathUUID(req, "contractID"); err == nil {
		t.Fatal("expected error for malformed uuid")
	}
}

func TestToMetricsViewRendersBigIntsAsDecimalStrings(t *testing.T) {
	t.Parallel()

	m := models.MetricsRow{
		ContractID:     "c1",
		Period:         "1d",
		BucketStart:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MintAmount:     big.NewInt(100),
		BurnAmount:     big.NewInt(50),
		TransferVolume: big.NewInt(25),
		FeeTotal:       big.NewInt(1),
		TotalSupply:    nil,
	}
	v := toMetricsView(m)

	if v.MintAmount != "100" || v.BurnAmount != "50" || v.TransferVolume != "25" || v.FeeTotal != "1" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.TotalSupply != "" {
		t.Fatalf("expected empty total_supply for nil, got %q", v.TotalSupply)
	}
	if v.BucketStart != "2026-01-01T00:00:00Z" {
		t.Fatalf("bucket_start=%q", v.BucketStart)
	}
}

func TestToMetricsViewIncludesTotalSupplyWhenSet(t *testing.T) {
	t.Parallel()

	m := models.MetricsRow{
		MintAmount:     big.NewInt(0),
		BurnAmount:     big.NewInt(0),
		TransferVolume: big.NewInt(0),
		FeeTotal:       big.NewInt(0),
		TotalSupply:    big.NewInt(999),
	}
	v := toMetricsView(m)
	if v.TotalSupply != "999" {
		t.Fatalf("total_supply=%q want 999", v.TotalSupply)
	}
}

func TestCommonMiddlewareHandlesPreflight(t *testing.T) {
	t.Parallel()

	called := false
	h := commonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/contracts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatal("expected OPTIONS preflight to short-circuit before the wrapped handler")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestParseQueryTimeAcceptsRFC3339AndUnixSeconds(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []string{"2026-01-01T00:00:00Z", "1767225600"}
	for _, in := range cases {
		got, err := parseQueryTime(in)
		if err != nil {
			t.Fatalf("parseQueryTime(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parseQueryTime(%q)=%v want %v", in, got, want)
		}
	}
}

func TestParseQueryTimeRejectsEmptyAndGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "not-a-time"} {
		if _, err := parseQueryTime(in); err == nil {
			t.Fatalf("parseQueryTime(%q): expected error", in)
		}
	}
}

func TestCommonMiddlewarePassesThroughNonPreflight(t *testing.T) {
	t.Parallel()

	called := false
	h := commonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected GET request to reach the wrapped handler")
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("missing content-type header")
	}
}
