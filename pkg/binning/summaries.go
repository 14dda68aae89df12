package binning

import (
	"fmt"

	"github.com/featurebin/qsketch/pkg/sketch"
)

// ColumnSummary is the view of a quantile summary the binning layer works
// with, satisfied by both the dense and the sparse variant.
type ColumnSummary interface {
	Insert(v float64)
	Query(p float64) (float64, error)
	Compress()
	// Merge folds other into the receiver. Mixing variants or
	// configurations is an error.
	Merge(other ColumnSummary) error
}

// SummaryMap holds one summary per configured column. A nil map is the
// identity element of the reduce phase.
type SummaryMap map[string]ColumnSummary

// KeyNotFoundError reports a column missing from a summary map. Lookups are
// never silently defaulted.
type KeyNotFoundError struct {
	Column string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("binning: no summary for column %q", e.Column)
}

// DenseColumn adapts a dense summary to ColumnSummary.
type DenseColumn struct {
	*sketch.Summary
}

func (c DenseColumn) Merge(other ColumnSummary) error {
	o, ok := other.(DenseColumn)
	if !ok {
		return &sketch.ConfigMismatchError{Msg: "merging dense summary with sparse summary"}
	}
	return c.Summary.Merge(o.Summary)
}

// SparseColumn adapts a sparse summary to ColumnSummary.
type SparseColumn struct {
	*sketch.SparseSummary
}

func (c SparseColumn) Merge(other ColumnSummary) error {
	o, ok := other.(SparseColumn)
	if !ok {
		return &sketch.ConfigMismatchError{Msg: "merging sparse summary with dense summary"}
	}
	return c.SparseSummary.Merge(o.SparseSummary)
}

// NewColumnSummary creates the summary variant selected by cfg.
func NewColumnSummary(cfg Config) ColumnSummary {
	if cfg.Sparse {
		return SparseColumn{sketch.NewSparse(cfg.Sketch)}
	}
	return DenseColumn{sketch.New(cfg.Sketch)}
}
