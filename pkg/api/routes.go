package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/featurebin/qsketch/pkg/binning"
	"github.com/featurebin/qsketch/pkg/storage"
)

type JSON map[string]any

// RegisterRoutes wires the binning endpoints onto r.
func RegisterRoutes(r *mux.Router, db *sql.DB, logger log.Logger) error {
	h, err := NewHandler(db, logger)
	if err != nil {
		return err
	}

	// Core endpoints
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/datasets/build", h.PostBuild).Methods(http.MethodPost)
	r.HandleFunc("/datasets/{id}/summaries", h.GetSummaries).Methods(http.MethodGet)

	// Query endpoints
	r.HandleFunc("/quantile", h.PostQuantile).Methods(http.MethodPost)
	r.HandleFunc("/splitpoints", h.PostSplitPoints).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return nil
}

// Handler serves the HTTP API. Built datasets keep an in-memory session so
// repeated queries hit the memoized summary map; after a restart the same
// dataset id is still answerable from the persisted summaries.
type Handler struct {
	db     *sql.DB
	logger log.Logger
	store  *storage.Store

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	svc *binning.Service
	cfg binning.Config
}

func NewHandler(db *sql.DB, logger log.Logger) (*Handler, error) {
	store, err := storage.NewStore(db, 0)
	if err != nil {
		return nil, err
	}
	return &Handler{
		db:       db,
		logger:   logger,
		store:    store,
		sessions: make(map[string]*session),
	}, nil
}

func (h *Handler) session(id string) (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
