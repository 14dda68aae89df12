// Package storage persists serialized quantile summaries in sqlite so a
// dataset's summaries survive process restarts and can be queried without a
// rebuild. Split points themselves are never stored; they are derived views.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/featurebin/qsketch/pkg/binning"
	"github.com/featurebin/qsketch/pkg/sketch"
)

// Summary kinds as stored in the kind column.
const (
	KindDense  = "dense"
	KindSparse = "sparse"
)

// DefaultCacheSize bounds the decoded-summary LRU cache.
const DefaultCacheSize = 512

// EnsureTables creates the metadata tables if they do not exist.
func EnsureTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS qsk_datasets (
            id TEXT PRIMARY KEY,
            table_name TEXT NOT NULL,
            row_count INTEGER NOT NULL,
            sparse INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS qsk_summaries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            dataset_id TEXT NOT NULL,
            column_name TEXT NOT NULL,
            kind TEXT NOT NULL,
            data BLOB NOT NULL,
            params TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(dataset_id, column_name)
        );`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Params is the configuration snapshot stored next to each summary blob.
type Params struct {
	Error         float64 `json:"error"`
	CompressThres int     `json:"compress_thres"`
	HeadSize      int     `json:"head_size"`
}

// Store reads and writes serialized summaries, keeping decoded summaries in
// an LRU cache keyed by dataset and column.
type Store struct {
	db    *sql.DB
	cache *lru.Cache[string, binning.ColumnSummary]
}

// NewStore wraps db with a decode cache of the given size (0 selects the
// default).
func NewStore(db *sql.DB, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, binning.ColumnSummary](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: cache}, nil
}

// RegisterDataset records a built dataset and returns its generated id.
func (s *Store) RegisterDataset(ctx context.Context, table string, rowCount int64, sparse bool) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO qsk_datasets(id, table_name, row_count, sparse) VALUES(?,?,?,?)`,
		id, table, rowCount, boolInt(sparse))
	if err != nil {
		return "", fmt.Errorf("storage: register dataset: %w", err)
	}
	return id, nil
}

// SaveSummaries upserts the serialized summary of every column in m under
// the given dataset id.
func (s *Store) SaveSummaries(ctx context.Context, datasetID string, m binning.SummaryMap, cfg sketch.Config) error {
	params, err := json.Marshal(Params{
		Error:         cfg.Error,
		CompressThres: cfg.CompressThres,
		HeadSize:      cfg.HeadSize,
	})
	if err != nil {
		return err
	}

	for name, cs := range m {
		var kind string
		var data []byte
		switch c := cs.(type) {
		case binning.DenseColumn:
			kind = KindDense
			data, err = c.Summary.MarshalBinary()
		case binning.SparseColumn:
			kind = KindSparse
			data, err = c.SparseSummary.MarshalBinary()
		default:
			return fmt.Errorf("storage: unknown summary variant %T for column %q", cs, name)
		}
		if err != nil {
			return fmt.Errorf("storage: encode column %q: %w", name, err)
		}

		_, err = s.db.ExecContext(ctx, `
            INSERT INTO qsk_summaries(dataset_id, column_name, kind, data, params, created_at)
            VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
            ON CONFLICT(dataset_id, column_name)
            DO UPDATE SET kind=excluded.kind, data=excluded.data, params=excluded.params, created_at=CURRENT_TIMESTAMP`,
			datasetID, name, kind, data, string(params))
		if err != nil {
			return fmt.Errorf("storage: save column %q: %w", name, err)
		}
		s.cache.Remove(cacheKey(datasetID, name))
	}
	return nil
}

// GetSummary loads and decodes one column's summary, serving repeated reads
// from the cache.
func (s *Store) GetSummary(ctx context.Context, datasetID, column string) (binning.ColumnSummary, error) {
	key := cacheKey(datasetID, column)
	if cs, ok := s.cache.Get(key); ok {
		return cs, nil
	}

	var kind string
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, data FROM qsk_summaries WHERE dataset_id = ? AND column_name = ?`,
		datasetID, column).Scan(&kind, &data)
	if err != nil {
		return nil, fmt.Errorf("storage: load summary %s/%s: %w", datasetID, column, err)
	}

	var cs binning.ColumnSummary
	switch kind {
	case KindDense:
		sum, err := sketch.UnmarshalSummary(data)
		if err != nil {
			return nil, err
		}
		cs = binning.DenseColumn{Summary: sum}
	case KindSparse:
		sum, err := sketch.UnmarshalSparseSummary(data)
		if err != nil {
			return nil, err
		}
		cs = binning.SparseColumn{SparseSummary: sum}
	default:
		return nil, fmt.Errorf("storage: unknown summary kind %q", kind)
	}
	s.cache.Add(key, cs)
	return cs, nil
}

// SummaryInfo describes one stored summary.
type SummaryInfo struct {
	DatasetID string `json:"dataset_id"`
	Column    string `json:"column"`
	Kind      string `json:"kind"`
	Params    Params `json:"params"`
}

// ListSummaries returns metadata for every summary stored under a dataset.
func (s *Store) ListSummaries(ctx context.Context, datasetID string) ([]SummaryInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, kind, params FROM qsk_summaries WHERE dataset_id = ? ORDER BY column_name`,
		datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []SummaryInfo
	for rows.Next() {
		info := SummaryInfo{DatasetID: datasetID}
		var params string
		if err := rows.Scan(&info.Column, &info.Kind, &params); err != nil {
			return nil, err
		}
		if params != "" {
			if err := json.Unmarshal([]byte(params), &info.Params); err != nil {
				return nil, fmt.Errorf("storage: decode params for %q: %w", info.Column, err)
			}
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func cacheKey(datasetID, column string) string {
	return datasetID + "/" + column
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
