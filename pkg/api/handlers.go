package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/featurebin/qsketch/pkg/binning"
	"github.com/featurebin/qsketch/pkg/engine"
	"github.com/featurebin/qsketch/pkg/sketch"
	"github.com/featurebin/qsketch/pkg/storage"
)

// DefaultBinNum is used when a request leaves bin_num unset.
const DefaultBinNum = 10

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{"status": "ok"})
}

type BuildRequest struct {
	Table string `json:"table"`
	// SparseValues names the (row_id, col_index, value) triple table of a
	// sparse dataset; the row table is Table.
	SparseValues string   `json:"sparse_values,omitempty"`
	Columns      []string `json:"columns"`
	Sparse       bool     `json:"sparse"`
	BinNum       int      `json:"bin_num"`
	Shards       int      `json:"shards"`
	// Error is the summary's epsilon. Omitted means the default; an explicit
	// 0 asks for exact quantiles.
	Error         *float64  `json:"error,omitempty"`
	CompressThres int       `json:"compress_thres"`
	HeadSize      int       `json:"head_size"`
	Abnormal      []float64 `json:"abnormal,omitempty"`
}

func (h *Handler) PostBuild(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "invalid json"})
		return
	}
	req.Table = strings.TrimSpace(req.Table)
	if req.Table == "" || len(req.Columns) == 0 {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "table and columns required"})
		return
	}
	if req.Sparse && req.SparseValues == "" {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "sparse_values required for sparse datasets"})
		return
	}
	if req.BinNum == 0 {
		req.BinNum = DefaultBinNum
	}
	if req.Shards <= 0 {
		req.Shards = 4
	}
	eps := -1.0 // sketch default
	if req.Error != nil {
		eps = *req.Error
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var rows []binning.Row
	var err error
	if req.Sparse {
		rows, err = storage.LoadSparse(ctx, h.db, req.Table, req.SparseValues)
	} else {
		rows, err = storage.LoadDense(ctx, h.db, req.Table, req.Columns)
	}
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, JSON{"error": err.Error()})
		return
	}

	cfg := binning.HeaderConfig(req.Columns, req.BinNum, req.Sparse, sketch.Config{
		Error:         eps,
		CompressThres: req.CompressThres,
		HeadSize:      req.HeadSize,
		AbnormalList:  req.Abnormal,
	})
	shards := engine.PartitionByKey(rows, func(r binning.Row) string { return r.Key }, req.Shards)
	svc := binning.NewService(cfg, shards)

	start := time.Now()
	summaries, err := svc.Summaries()
	took := time.Since(start)
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		writeJSON(w, statusFor(err), JSON{"error": err.Error()})
		return
	}
	buildSeconds.Observe(took.Seconds())

	id, err := h.store.RegisterDataset(ctx, req.Table, int64(len(rows)), req.Sparse)
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, JSON{"error": err.Error()})
		return
	}
	if err := h.store.SaveSummaries(ctx, id, summaries, cfg.Sketch); err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, JSON{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.sessions[id] = &session{svc: svc, cfg: cfg}
	h.mu.Unlock()

	buildsTotal.WithLabelValues("ok").Inc()
	level.Info(h.logger).Log("msg", "built summaries",
		"dataset", id, "table", req.Table, "rows", len(rows),
		"columns", len(req.Columns), "sparse", req.Sparse, "took", took)

	writeJSON(w, http.StatusOK, JSON{
		"status":  "ok",
		"dataset": id,
		"rows":    len(rows),
		"took_ms": took.Milliseconds(),
	})
}

type QuantileRequest struct {
	Dataset string   `json:"dataset"`
	Columns []string `json:"columns,omitempty"`
	// QueryPoints is either a single probability applied to every column in
	// Columns, or a column-to-probability mapping.
	QueryPoints any `json:"query_points"`
}

func (h *Handler) PostQuantile(w http.ResponseWriter, r *http.Request) {
	var req QuantileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "invalid json"})
		return
	}
	if req.Dataset == "" {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "dataset required"})
		return
	}
	points, err := binning.QueryPointsFrom(req.QueryPoints)
	if err != nil {
		queriesTotal.WithLabelValues("quantile", "error").Inc()
		writeJSON(w, statusFor(err), JSON{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var result map[string]float64
	if sess, ok := h.session(req.Dataset); ok {
		result, err = sess.svc.Query(req.Columns, points)
	} else {
		result, err = h.queryStored(ctx, req.Dataset, req.Columns, points)
	}
	if err != nil {
		queriesTotal.WithLabelValues("quantile", "error").Inc()
		writeJSON(w, statusFor(err), JSON{"error": err.Error()})
		return
	}

	queriesTotal.WithLabelValues("quantile", "ok").Inc()
	writeJSON(w, http.StatusOK, JSON{"status": "ok", "quantiles": result})
}

// queryStored answers a quantile query for a dataset with no live session by
// decoding the persisted per-column summaries.
func (h *Handler) queryStored(ctx context.Context, dataset string, columns []string, points binning.QueryPoints) (map[string]float64, error) {
	targets := points.Resolve(columns)
	if len(targets) == 0 {
		return nil, &sketch.InvalidArgumentError{Msg: "columns required with a uniform query point"}
	}
	result := make(map[string]float64, len(targets))
	for name, p := range targets {
		cs, err := h.store.GetSummary(ctx, dataset, name)
		if err != nil {
			return nil, err
		}
		v, err := cs.Query(p)
		if err != nil {
			return nil, err
		}
		result[name] = v
	}
	return result, nil
}

type SplitPointsRequest struct {
	Dataset string `json:"dataset"`
	BinNum  int    `json:"bin_num"`
}

func (h *Handler) PostSplitPoints(w http.ResponseWriter, r *http.Request) {
	var req SplitPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "invalid json"})
		return
	}
	if req.Dataset == "" {
		writeJSON(w, http.StatusBadRequest, JSON{"error": "dataset required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var points map[string][]float64
	var err error
	if sess, ok := h.session(req.Dataset); ok {
		if req.BinNum == 0 || req.BinNum == sess.cfg.BinNum {
			points, err = sess.svc.FitSplitPoints()
		} else {
			var summaries binning.SummaryMap
			summaries, err = sess.svc.Summaries()
			if err == nil {
				points, err = binning.SplitPoints(summaries, req.BinNum)
			}
		}
	} else {
		points, err = h.splitStored(ctx, req.Dataset, req.BinNum)
	}
	if err != nil {
		queriesTotal.WithLabelValues("splitpoints", "error").Inc()
		writeJSON(w, statusFor(err), JSON{"error": err.Error()})
		return
	}

	queriesTotal.WithLabelValues("splitpoints", "ok").Inc()
	writeJSON(w, http.StatusOK, JSON{"status": "ok", "split_points": points})
}

func (h *Handler) splitStored(ctx context.Context, dataset string, binNum int) (map[string][]float64, error) {
	if binNum == 0 {
		binNum = DefaultBinNum
	}
	infos, err := h.store.ListSummaries(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, sql.ErrNoRows
	}
	summaries := make(binning.SummaryMap, len(infos))
	for _, info := range infos {
		cs, err := h.store.GetSummary(ctx, dataset, info.Column)
		if err != nil {
			return nil, err
		}
		summaries[info.Column] = cs
	}
	return binning.SplitPoints(summaries, binNum)
}

func (h *Handler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	infos, err := h.store.ListSummaries(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, JSON{"error": err.Error()})
		return
	}
	if len(infos) == 0 {
		writeJSON(w, http.StatusNotFound, JSON{"error": "unknown dataset"})
		return
	}
	writeJSON(w, http.StatusOK, JSON{"dataset": id, "summaries": infos})
}

// statusFor maps domain errors onto HTTP status codes. Caller mistakes are
// 400s, conflicting state is a 409, a missing row is a 404.
func statusFor(err error) int {
	var invalid *sketch.InvalidArgumentError
	var notFound *binning.KeyNotFoundError
	var state *sketch.StateError
	var mismatch *sketch.ConfigMismatchError
	switch {
	case errors.As(err, &invalid), errors.As(err, &notFound), errors.Is(err, sketch.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.As(err, &state), errors.As(err, &mismatch):
		return http.StatusConflict
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
