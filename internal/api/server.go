// Package api is the external REST surface: CRUD for companies,
// stablecoins, networks, contracts and endpoints, read-only views over
// sync state, metrics and jobs, and the triggerSync/resetContract operator
// actions.
//
// Grounded on the teacher's internal/api package: gorilla/mux router, a
// single Server type wrapping *http.Server, Start/Shutdown returning plain
// errors for main to handle, and the same CORS + JSON content-type
// middleware stack (commonMiddleware) and per-IP rate limiting
// (rateLimitMiddleware, kept from the teacher's ratelimit.go unchanged —
// it is already chain-agnostic).
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"stablecoin-index/internal/queue"
	"stablecoin-index/internal/repository"
)

type Server struct {
	repo       *repository.Repository
	scheduler  *queue.Scheduler
	httpServer *http.Server
}

func NewServer(repo *repository.Repository, scheduler *queue.Scheduler, port string) *Server {
	r := mux.NewRouter()
	s := &Server{repo: repo, scheduler: scheduler}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	registerRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	return s
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
