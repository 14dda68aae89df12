package sketch

import (
	"fmt"
	"math"
)

// SparseSummary wraps a dense Summary for columns where most values are an
// implicit zero that is never materialized. Only non-zero values are
// inserted; the zero mass is folded into rank math once the caller supplies
// the authoritative full row count via SetTotalCount (typically after the
// partitioned build has been reduced).
type SparseSummary struct {
	dense *Summary

	smaller  int64 // inserted values below zero
	bigger   int64 // inserted values above zero
	total    int64 // full row count including implicit zeros
	totalSet bool
}

// NewSparse creates an empty sparse summary with the given dense
// configuration.
func NewSparse(cfg Config) *SparseSummary {
	return &SparseSummary{dense: New(cfg)}
}

// Dense exposes the inner dense summary.
func (s *SparseSummary) Dense() *Summary { return s.dense }

// ExplicitCount returns the number of inserted non-zero, non-abnormal values.
func (s *SparseSummary) ExplicitCount() int64 { return s.dense.Count() }

// TotalCount returns the assigned full row count and whether it has been set.
func (s *SparseSummary) TotalCount() (int64, bool) { return s.total, s.totalSet }

// Insert adds one observation. Zero is a no-op (implicit); abnormal values
// are skipped entirely.
func (s *SparseSummary) Insert(v float64) {
	if v == 0 || s.dense.isAbnormal(v) {
		return
	}
	if v < 0 {
		s.smaller++
	} else {
		s.bigger++
	}
	s.dense.Insert(v)
}

// SetTotalCount records the full row count, implicit zeros included. It may
// be called once; a second call with a different value is a StateError.
func (s *SparseSummary) SetTotalCount(n int64) error {
	if s.totalSet && s.total != n {
		return &StateError{Msg: fmt.Sprintf("total count already set to %d, refusing %d", s.total, n)}
	}
	if n < s.ExplicitCount() {
		return &StateError{Msg: fmt.Sprintf("total count %d below explicit count %d", n, s.ExplicitCount())}
	}
	s.total = n
	s.totalSet = true
	return nil
}

// Compress forwards to the inner dense summary.
func (s *SparseSummary) Compress() { s.dense.Compress() }

// Query answers probability p against the full distribution, zeros included.
// Negative values sort before the zero band, positives after it; a target
// rank landing inside the band returns 0 without any zero ever having been
// inserted. Requires SetTotalCount to have been called.
func (s *SparseSummary) Query(p float64) (float64, error) {
	if p < 0 || p > 1 {
		return 0, &InvalidArgumentError{Msg: fmt.Sprintf("probability %v outside [0, 1]", p)}
	}
	if !s.totalSet {
		return 0, &StateError{Msg: "total count not set before query"}
	}
	if s.total == 0 {
		return 0, ErrOutOfRange
	}
	explicit := s.ExplicitCount()
	zeros := s.total - explicit
	if zeros == 0 {
		return s.dense.Query(p)
	}
	if explicit == 0 {
		return 0, nil
	}

	// Overall ranks: negatives occupy 1..smaller, the implicit zeros
	// smaller+1..smaller+zeros, positives the rest.
	rank := math.Round(p * float64(s.total))
	switch {
	case rank > float64(s.smaller) && rank <= float64(s.smaller+zeros):
		return 0, nil
	case rank <= float64(s.smaller):
		if s.smaller == 0 {
			// No negatives were inserted, so zero is the minimum.
			return 0, nil
		}
		// Negatives occupy the same leading ranks inside the dense summary.
		return s.dense.Query(clampUnit(rank / float64(explicit)))
	default:
		// Shift the implicit-zero mass out of the target rank.
		return s.dense.Query(clampUnit((rank - float64(zeros)) / float64(explicit)))
	}
}

// Merge folds other into s: dense summaries merge, explicit counts sum.
// Total counts must be unset on both sides or equal; anything else is a
// StateError. The other summary must not be used afterwards.
func (s *SparseSummary) Merge(other *SparseSummary) error {
	if other == nil {
		return nil
	}
	if s.totalSet != other.totalSet {
		return &StateError{Msg: "merging summaries with and without a total count"}
	}
	if s.totalSet && s.total != other.total {
		return &StateError{Msg: fmt.Sprintf("merging conflicting total counts %d and %d", s.total, other.total)}
	}
	if err := s.dense.Merge(other.dense); err != nil {
		return err
	}
	s.smaller += other.smaller
	s.bigger += other.bigger
	return nil
}

// RankBounds mirrors Summary.RankBounds against the full row count.
func (s *SparseSummary) RankBounds(p float64) (lo, hi int64) {
	n := float64(s.total)
	e := s.dense.cfg.Error
	lo = int64(math.Floor((p - 2*e) * n))
	hi = int64(math.Ceil((p + 2*e) * n))
	if lo < 0 {
		lo = 0
	}
	if hi > s.total {
		hi = s.total
	}
	return lo, hi
}

func clampUnit(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
