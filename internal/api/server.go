// Package api exposes the preparation pipeline over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halcyon-data/mlprep/internal/config"
	"github.com/halcyon-data/mlprep/internal/model"
	"github.com/halcyon-data/mlprep/internal/store"
)

// Server handles clustering and embedding requests backed by a run store.
type Server struct {
	store   store.Store
	cluster config.ClusterConfig
	embed   config.EmbedConfig
}

// NewServer creates a Server with the given store and defaults.
func NewServer(st store.Store, clusterCfg config.ClusterConfig, embedCfg config.EmbedConfig) *Server {
	return &Server{store: st, cluster: clusterCfg, embed: embedCfg}
}

// Router builds the HTTP handler with CORS and rate limiting applied.
func (s *Server) Router(limit rate.Limit, burst int) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(rateLimit(rate.NewLimiter(limit, burst)))

	r.Get("/health", s.handleHealth)
	r.Post("/cluster", s.handleCluster)
	r.Post("/embed", s.handleEmbed)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})
	r.Get("/freq/{dataset}/{column}", s.handleGetFreq)

	return r
}

// rateLimit rejects requests once the shared limiter is exhausted.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	filter := store.RunFilter{
		Kind:    model.RunKind(r.URL.Query().Get("kind")),
		Dataset: r.URL.Query().Get("dataset"),
		Limit:   limit,
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetFreq(w http.ResponseWriter, r *http.Request) {
	table, err := s.store.GetFreqTable(r.Context(), chi.URLParam(r, "dataset"), chi.URLParam(r, "column"))
	if err != nil {
		writeError(w, http.StatusNotFound, "frequency table not found")
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
