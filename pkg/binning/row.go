// Package binning derives equal-probability bin boundaries for numeric
// feature columns from quantile summaries built shard-parallel and merged
// pairwise.
package binning

import "github.com/featurebin/qsketch/pkg/sketch"

// SparseEntry is one explicitly stored (column index, value) pair of a
// sparse row. Column indexes absent from a row are implicitly zero.
type SparseEntry struct {
	Index int
	Value float64
}

// Row is one keyed observation. Exactly one of Dense or Sparse is populated;
// which one is decided by the loader once per dataset, never sniffed per row.
type Row struct {
	Key    string
	Dense  []float64
	Sparse []SparseEntry
}

// DenseOf builds a dense row.
func DenseOf(key string, values []float64) Row {
	return Row{Key: key, Dense: values}
}

// SparseOf builds a sparse row from explicit entries.
func SparseOf(key string, entries []SparseEntry) Row {
	return Row{Key: key, Sparse: entries}
}

// Config fixes the column set and sketch parameters of one binning run. The
// column set is configuration, not discovered per shard, so every partial
// summary map carries exactly the same keys.
type Config struct {
	// Columns maps column name to its index within a dense row.
	Columns map[string]int
	// Header maps a sparse entry's index back to its column name.
	Header []string
	// Sparse selects the summary variant and which Row field is read.
	Sparse bool
	// BinNum is the number of equal-probability bins; BinNum-1 split points
	// are produced.
	BinNum int
	// Sketch carries the per-column summary parameters.
	Sketch sketch.Config
}

// HeaderConfig builds a Config for the given ordered header.
func HeaderConfig(header []string, binNum int, sparse bool, scfg sketch.Config) Config {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	return Config{
		Columns: cols,
		Header:  header,
		Sparse:  sparse,
		BinNum:  binNum,
		Sketch:  scfg,
	}
}
