package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/featurebin/qsketch/pkg/binning"
)

// LoadDense reads the given numeric columns of a feature table into keyed
// dense rows, ready for partitioning. Row keys are the sqlite rowids, so
// shard assignment is stable across runs.
func LoadDense(ctx context.Context, db *sql.DB, table string, columns []string) ([]binning.Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("storage: no columns requested for table %s", table)
	}
	q := fmt.Sprintf("SELECT rowid, %s FROM %s", strings.Join(columns, ", "), table)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []binning.Row
	for rows.Next() {
		var rowid int64
		vals := make([]any, len(columns))
		ptrs := make([]any, 0, len(columns)+1)
		ptrs = append(ptrs, &rowid)
		for i := range vals {
			ptrs = append(ptrs, &vals[i])
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		features := make([]float64, len(columns))
		for i, v := range vals {
			f, ok := toFloat64(v)
			if !ok {
				return nil, fmt.Errorf("storage: column %s of %s row %d is not numeric", columns[i], table, rowid)
			}
			features[i] = f
		}
		out = append(out, binning.DenseOf(strconv.FormatInt(rowid, 10), features))
	}
	return out, rows.Err()
}

// LoadSparse reads a (rowid, column index, value) triple table into keyed
// sparse rows. Rows present in the row table but absent from the triple
// table come back with no entries, i.e. all-implicit-zero.
func LoadSparse(ctx context.Context, db *sql.DB, rowTable, tripleTable string) ([]binning.Row, error) {
	entries := make(map[int64][]binning.SparseEntry)
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT row_id, col_index, value FROM %s", tripleTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rowID int64
		var colIndex int
		var value float64
		if err := rows.Scan(&rowID, &colIndex, &value); err != nil {
			return nil, err
		}
		entries[rowID] = append(entries[rowID], binning.SparseEntry{Index: colIndex, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids, err := db.QueryContext(ctx, fmt.Sprintf("SELECT rowid FROM %s", rowTable))
	if err != nil {
		return nil, err
	}
	defer ids.Close()

	var out []binning.Row
	for ids.Next() {
		var rowid int64
		if err := ids.Scan(&rowid); err != nil {
			return nil, err
		}
		out = append(out, binning.SparseOf(strconv.FormatInt(rowid, 10), entries[rowid]))
	}
	return out, ids.Err()
}

func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
