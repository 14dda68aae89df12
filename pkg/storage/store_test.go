package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/featurebin/qsketch/pkg/binning"
	"github.com/featurebin/qsketch/pkg/sketch"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureTables(context.Background(), db))
	return db
}

func TestSaveAndGetSummaries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewStore(db, 0)
	require.NoError(t, err)

	cfg := binning.HeaderConfig([]string{"x"}, 4, false, sketch.Config{Error: 0})
	rows := make([]binning.Row, 0, 100)
	for v := 1; v <= 100; v++ {
		rows = append(rows, binning.DenseOf("", []float64{float64(v)}))
	}
	m := binning.BuildPartitionSummaries(rows, cfg)

	id, err := store.RegisterDataset(ctx, "features", 100, false)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, store.SaveSummaries(ctx, id, m, cfg.Sketch))

	loaded, err := store.GetSummary(ctx, id, "x")
	require.NoError(t, err)
	got, err := loaded.Query(0.5)
	require.NoError(t, err)
	require.Equal(t, 50.0, got)

	// Second read is served from the cache and stays consistent.
	cached, err := store.GetSummary(ctx, id, "x")
	require.NoError(t, err)
	got, err = cached.Query(0.25)
	require.NoError(t, err)
	require.Equal(t, 25.0, got)

	infos, err := store.ListSummaries(ctx, id)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "x", infos[0].Column)
	require.Equal(t, KindDense, infos[0].Kind)
}

func TestSaveSparseSummary(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewStore(db, 0)
	require.NoError(t, err)

	cfg := binning.HeaderConfig([]string{"f"}, 4, true, sketch.Config{})
	rows := []binning.Row{
		binning.SparseOf("1", []binning.SparseEntry{{Index: 0, Value: 5}}),
		binning.SparseOf("2", nil),
	}
	m := binning.BuildPartitionSummaries(rows, cfg)
	require.NoError(t, binning.AssignTotalCounts(m, 2))

	id, err := store.RegisterDataset(ctx, "features", 2, true)
	require.NoError(t, err)
	require.NoError(t, store.SaveSummaries(ctx, id, m, cfg.Sketch))

	loaded, err := store.GetSummary(ctx, id, "f")
	require.NoError(t, err)
	got, err := loaded.Query(1.0)
	require.NoError(t, err)
	require.Equal(t, 5.0, got)
}

func TestGetSummaryMissing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewStore(db, 0)
	require.NoError(t, err)

	_, err = store.GetSummary(ctx, "nope", "x")
	require.Error(t, err)
}

func TestLoadDense(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.ExecContext(ctx, `CREATE TABLE features (a REAL, b REAL)`)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err = db.ExecContext(ctx, `INSERT INTO features(a, b) VALUES(?, ?)`, float64(i), float64(i*10))
		require.NoError(t, err)
	}

	rows, err := LoadDense(ctx, db, "features", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	require.Equal(t, []float64{1, 10}, rows[0].Dense)
	require.NotEmpty(t, rows[0].Key)
}

func TestLoadSparse(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.ExecContext(ctx, `CREATE TABLE feat_rows (label INTEGER)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE feat_values (row_id INTEGER, col_index INTEGER, value REAL)`)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = db.ExecContext(ctx, `INSERT INTO feat_rows(label) VALUES(0)`)
		require.NoError(t, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO feat_values VALUES(1, 0, 7.5)`)
	require.NoError(t, err)

	rows, err := LoadSparse(ctx, db, "feat_rows", "feat_values")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var withEntries int
	for _, r := range rows {
		withEntries += len(r.Sparse)
	}
	require.Equal(t, 1, withEntries)
}
