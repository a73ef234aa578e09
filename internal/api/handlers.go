package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"stablecoin-index/internal/models"
	"stablecoin-index/internal/queue"
	"stablecoin-index/internal/repository"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}

// Companies

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.repo.CreateCompany(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	out, err := s.repo.ListCompanies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Stablecoins

func (s *Server) handleCreateStablecoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		Symbol    string `json:"symbol"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid company_id: %w", err))
		return
	}
	sc, err := s.repo.CreateStablecoin(r.Context(), companyID, req.Symbol, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleListStablecoins(w http.ResponseWriter, r *http.Request) {
	out, err := s.repo.ListStablecoins(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Networks

func (s *Server) handleCreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		ChainType string `json:"chain_type"`
		ChainID   string `json:"chain_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.repo.CreateNetwork(r.Context(), req.Name, models.ChainType(req.ChainType), req.ChainID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	out, err := s.repo.ListNetworks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Endpoints

func (s *Server) handleUpsertEndpoint(w http.ResponseWriter, r *http.Request) {
	networkID, err := pathUUID(r, "networkID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		URL       string  `json:"url"`
		RateLimit float64 `json:"rate_limit_per_sec"`
		Priority  int     `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, err := s.repo.UpsertEndpoint(r.Context(), networkID, req.URL, req.RateLimit, req.Priority)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	networkID, err := pathUUID(r, "networkID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.repo.ListEndpoints(r.Context(), networkID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDisableEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointID, err := pathUUID(r, "endpointID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.repo.DisableEndpoint(r.Context(), endpointID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// Contracts

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StablecoinID string `json:"stablecoin_id"`
		NetworkID    string `json:"network_id"`
		Address      string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stablecoinID, err := uuid.Parse(req.StablecoinID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid stablecoin_id: %w", err))
		return
	}
	networkID, err := uuid.Parse(req.NetworkID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid network_id: %w", err))
		return
	}
	c, err := s.repo.CreateContract(r.Context(), stablecoinID, networkID, req.Address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if s.scheduler != nil {
		id, perr := uuid.Parse(c.ID)
		if perr == nil {
			key := fmt.Sprintf("%s-%s", queue.JobDiscoverContract, c.ID)
			if err := s.scheduler.Enqueue(r.Context(), queue.JobDiscoverContract, id, key); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
		}
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	out, err := s.repo.ListContracts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathUUID(r, "contractID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.repo.GetContract(r.Context(), contractID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// syncStatusView flattens contract + sync_state into the single read view an
// operator dashboard polls.
type syncStatusView struct {
	Contract  models.Contract  `json:"contract"`
	SyncState models.SyncState `json:"sync_state"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathUUID(r, "contractID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.repo.GetContract(r.Context(), contractID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	state, err := s.repo.GetSyncState(r.Context(), contractID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusView{Contract: c, SyncState: state})
}

// metricsRowView is the JSON-friendly projection of models.MetricsRow: the
// big.Int fields carry json:"-" on the domain type since a *big.Int marshals
// to a bare JSON number (precision loss for 78-digit amounts), so the API
// re-exposes them as decimal strings here instead.
type metricsRowView struct {
	ContractID      string `json:"contract_id"`
	Period          string `json:"period"`
	BucketStart     string `json:"bucket_start"`
	TransferCount   int64  `json:"transfer_count"`
	MintCount       int64  `json:"mint_count"`
	BurnCount       int64  `json:"burn_count"`
	MintAmount      string `json:"mint_amount"`
	BurnAmount      string `json:"burn_amount"`
	TransferVolume  string `json:"transfer_volume"`
	FeeTotal        string `json:"fee_total"`
	UniqueSenders   int64  `json:"unique_senders"`
	UniqueReceivers int64  `json:"unique_receivers"`
	TotalSupply     string `json:"total_supply,omitempty"`
	TotalFeesUSD    float64 `json:"total_fees_usd"`
}

func toMetricsView(m models.MetricsRow) metricsRowView {
	v := metricsRowView{
		ContractID:      m.ContractID,
		Period:          m.Period,
		BucketStart:     m.BucketStart.Format(time.RFC3339),
		TransferCount:   m.TransferCount,
		MintCount:       m.MintCount,
		BurnCount:       m.BurnCount,
		MintAmount:      m.MintAmount.String(),
		BurnAmount:      m.BurnAmount.String(),
		TransferVolume:  m.TransferVolume.String(),
		FeeTotal:        m.FeeTotal.String(),
		UniqueSenders:   m.UniqueSenders,
		UniqueReceivers: m.UniqueReceivers,
		TotalFeesUSD:    m.TotalFeesUSD,
	}
	if m.TotalSupply != nil {
		v.TotalSupply = m.TotalSupply.String()
	}
	return v
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathUUID(r, "contractID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1d"
	}
	rows, err := s.repo.GetMetrics(r.Context(), contractID, period, 90)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]metricsRowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toMetricsView(row))
	}
	writeJSON(w, http.StatusOK, views)
}

// parseQueryTime accepts either an RFC3339 timestamp or Unix seconds, the
// same leniency the teacher's API shows callers for timestamp-ish params.
func parseQueryTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("missing time parameter")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: must be RFC3339 or unix seconds", v)
	}
	return time.Unix(sec, 0).UTC(), nil
}

// handleTickerMetrics implements the query contract: (ticker, from, to,
// resolution), resolution one of 86400/864000/8640000/86400000/"auto".
func (s *Server) handleTickerMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ticker := q.Get("ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("ticker is required"))
		return
	}
	from, err := parseQueryTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseQueryTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resolution := q.Get("resolution")
	var resolutionSeconds int
	if resolution == "" || resolution == "auto" {
		resolutionSeconds = repository.AutoResolution(from, to)
	} else {
		n, err := strconv.Atoi(resolution)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid resolution %q", resolution))
			return
		}
		resolutionSeconds = n
	}

	rows, err := s.repo.GetMetricsByTicker(r.Context(), ticker, from, to, resolutionSeconds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	views := make([]metricsRowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toMetricsView(row))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleTriggerSync lets an operator force an immediate sync-contract job
// instead of waiting for the scheduler's catch-up timer, keyed the same way
// the catch-up loop keys it so a manual trigger cannot double-enqueue a job
// that is already pending against the current cursor.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathUUID(r, "contractID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("scheduler not attached"))
		return
	}
	state, err := s.repo.GetSyncState(r.Context(), contractID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	jobType := queue.JobSyncContract
	if state.Status == "pending" {
		jobType = queue.JobDiscoverContract
	}
	key := fmt.Sprintf("%s-%s-%d", jobType, contractID, state.LastSyncedBlock)
	if err := s.scheduler.Enqueue(r.Context(), jobType, contractID, key); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued", "job_type": jobType})
}

func (s *Server) handleResetContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathUUID(r, "contractID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.repo.ResetContract(r.Context(), contractID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	out, err := s.repo.ListJobs(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
