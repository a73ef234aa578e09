package api

import "github.com/gorilla/mux"

func registerRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	r.HandleFunc("/v1/companies", s.handleCreateCompany).Methods("POST")
	r.HandleFunc("/v1/companies", s.handleListCompanies).Methods("GET")

	r.HandleFunc("/v1/stablecoins", s.handleCreateStablecoin).Methods("POST")
	r.HandleFunc("/v1/stablecoins", s.handleListStablecoins).Methods("GET")

	r.HandleFunc("/v1/networks", s.handleCreateNetwork).Methods("POST")
	r.HandleFunc("/v1/networks", s.handleListNetworks).Methods("GET")

	r.HandleFunc("/v1/networks/{networkID}/endpoints", s.handleUpsertEndpoint).Methods("POST")
	r.HandleFunc("/v1/networks/{networkID}/endpoints", s.handleListEndpoints).Methods("GET")
	r.HandleFunc("/v1/endpoints/{endpointID}/disable", s.handleDisableEndpoint).Methods("POST")

	r.HandleFunc("/v1/contracts", s.handleCreateContract).Methods("POST")
	r.HandleFunc("/v1/contracts", s.handleListContracts).Methods("GET")
	r.HandleFunc("/v1/contracts/{contractID}", s.handleGetContract).Methods("GET")
	r.HandleFunc("/v1/contracts/{contractID}/sync-status", s.handleSyncStatus).Methods("GET")
	r.HandleFunc("/v1/contracts/{contractID}/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/v1/contracts/{contractID}/trigger-sync", s.handleTriggerSync).Methods("POST")
	r.HandleFunc("/v1/contracts/{contractID}/reset", s.handleResetContract).Methods("POST")

	r.HandleFunc("/v1/metrics", s.handleTickerMetrics).Methods("GET")

	r.HandleFunc("/v1/jobs", s.handleListJobs).Methods("GET")
}
