// Package sketch provides bounded-memory quantile summaries for approximate
// rank queries over numeric columns.
//
// The core structure is a variation of the Greenwald-Khanna sketch: values are
// buffered, periodically folded into an ordered sample sequence, and adjacent
// samples are coalesced whenever the combined rank uncertainty stays within
// the configured error budget. A value returned for probability p has true
// rank between floor((p-2e)*N) and ceil((p+2e)*N), where e is the configured
// error fraction and N the number of observations. Summaries built
// independently over disjoint data shards merge into a single summary whose
// error is no worse than the sum of the two sides' errors.
package sketch

import (
	"fmt"
	"math"
	"sort"
)

// Default configuration, applied by New for unset fields.
const (
	DefaultCompressThres = 10000
	DefaultHeadSize      = 10000
	DefaultError         = 1e-4
)

// Sample is one retained tuple of the sketch. G is the minimum number of
// observations, counting this sample and everything dropped since its
// predecessor, that rank between this sample and the previous one. Delta is
// the maximum additional uncertainty in that count. The sketch maintains
// g + delta <= ceil(2*error*N) for every retained sample.
type Sample struct {
	Value float64
	G     int64
	Delta int64
}

// Config carries the tuning knobs of a summary.
//
// Error is the target rank-error fraction; zero means exact (nothing is ever
// coalesced, memory is unbounded). A negative Error selects the default.
// HeadSize caps the unsorted insertion buffer; CompressThres is the retained
// sample count above which a coalescing pass runs after a buffer flush.
// AbnormalList values (e.g. missing-value sentinels) are excluded from all
// statistics.
type Config struct {
	CompressThres int
	HeadSize      int
	Error         float64
	AbnormalList  []float64
}

func (c Config) withDefaults() Config {
	if c.CompressThres <= 0 {
		c.CompressThres = DefaultCompressThres
	}
	if c.HeadSize <= 0 {
		c.HeadSize = DefaultHeadSize
	}
	if c.Error < 0 {
		c.Error = DefaultError
	}
	return c
}

// Summary is a dense streaming quantile sketch. It is not safe for concurrent
// use; shard-parallel builds must give each goroutine its own Summary and
// combine them with Merge afterwards.
type Summary struct {
	cfg      Config
	abnormal map[float64]struct{}

	sampled []Sample  // ordered ascending by value
	head    []float64 // pending uncompressed observations
	count   int64     // total non-abnormal observations

	// coalesced records that the buffer is empty and the sample sequence has
	// been coalesced since the last mutation. While it holds, Compress and
	// therefore Query are read-only, so a compressed summary may be queried
	// from multiple goroutines.
	coalesced bool
}

// New creates an empty summary. Zero-value config fields fall back to the
// package defaults; Error == 0 is honored and means exact ranks.
func New(cfg Config) *Summary {
	cfg = cfg.withDefaults()
	s := &Summary{
		cfg:  cfg,
		head: make([]float64, 0, cfg.HeadSize),
	}
	if len(cfg.AbnormalList) > 0 {
		s.abnormal = make(map[float64]struct{}, len(cfg.AbnormalList))
		for _, v := range cfg.AbnormalList {
			s.abnormal[v] = struct{}{}
		}
	}
	return s
}

// Config returns the summary's effective configuration.
func (s *Summary) Config() Config { return s.cfg }

// Count returns N, the number of non-abnormal observations inserted so far,
// buffered or compressed.
func (s *Summary) Count() int64 { return s.count + int64(len(s.head)) }

// SampleCount returns the number of retained samples, excluding the buffer.
func (s *Summary) SampleCount() int { return len(s.sampled) }

func (s *Summary) isAbnormal(v float64) bool {
	_, ok := s.abnormal[v]
	return ok
}

// Insert adds one observation. Values on the abnormal list are skipped.
func (s *Summary) Insert(v float64) {
	if s.isAbnormal(v) {
		return
	}
	s.coalesced = false
	s.head = append(s.head, v)
	if len(s.head) >= s.cfg.HeadSize {
		s.flushHead()
		if len(s.sampled) >= s.cfg.CompressThres {
			s.coalesce()
		}
	}
}

// flushHead folds the insertion buffer into the ordered sample sequence.
// A point landing strictly inside the retained range enters with
// delta = floor(2*error*N) - 1; points extending an extreme carry no
// uncertainty.
func (s *Summary) flushHead() {
	if len(s.head) == 0 {
		return
	}
	sort.Float64s(s.head)

	merged := make([]Sample, 0, len(s.sampled)+len(s.head))
	count := s.count
	si := 0
	for hi, v := range s.head {
		for si < len(s.sampled) && s.sampled[si].Value <= v {
			merged = append(merged, s.sampled[si])
			si++
		}
		count++
		var delta int64
		if len(merged) == 0 || (si == len(s.sampled) && hi == len(s.head)-1) {
			delta = 0
		} else {
			delta = int64(math.Floor(2*s.cfg.Error*float64(count))) - 1
			if delta < 0 {
				delta = 0
			}
		}
		merged = append(merged, Sample{Value: v, G: 1, Delta: delta})
	}
	merged = append(merged, s.sampled[si:]...)

	s.sampled = merged
	s.head = s.head[:0]
	s.count = count
}

// Compress empties the insertion buffer and coalesces the sample sequence.
// It is forced before every merge, query, and serialization, and may be
// called explicitly at any point. On a summary with no mutations since the
// last compression it is a no-op.
func (s *Summary) Compress() {
	if s.coalesced {
		return
	}
	s.flushHead()
	s.coalesce()
	s.coalesced = true
}

// coalesce walks the sample sequence right to left and folds a sample into
// its successor while the combined g plus the successor's delta stays below
// floor(2*error*N). The surviving sample keeps its own value and delta, so no
// retained sample's error bound ever grows. The minimum sample is always
// kept.
func (s *Summary) coalesce() {
	if len(s.sampled) < 2 {
		return
	}
	threshold := math.Floor(2 * s.cfg.Error * float64(s.count))

	out := make([]Sample, 0, len(s.sampled))
	keep := s.sampled[len(s.sampled)-1]
	for i := len(s.sampled) - 2; i >= 1; i-- {
		cur := s.sampled[i]
		if float64(cur.G+keep.G+keep.Delta) <= threshold {
			keep.G += cur.G
		} else {
			out = append(out, keep)
			keep = cur
		}
	}
	out = append(out, keep)
	out = append(out, s.sampled[0])

	// Built tail-first above; restore ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.sampled = out
}

// Merge folds other into s. Both sides are compressed first, then the two
// sample sequences are interleaved by value; a sample falling between a
// bracketing pair (lo, hi) of the other sequence widens its delta by
// lo.G + lo.Delta + hi.G - 1. This makes Merge associative and commutative:
// the merged error is no worse than the sum of the two sides' errors.
//
// Merging summaries built with different Error or CompressThres settings is
// rejected with a ConfigMismatchError, since the error-bound proof assumes a
// shared configuration. The other summary must not be used afterwards.
func (s *Summary) Merge(other *Summary) error {
	if other == nil {
		return nil
	}
	if s.cfg.Error != other.cfg.Error || s.cfg.CompressThres != other.cfg.CompressThres {
		return &ConfigMismatchError{Msg: fmt.Sprintf(
			"error %v/%v, compress threshold %d/%d",
			s.cfg.Error, other.cfg.Error, s.cfg.CompressThres, other.cfg.CompressThres)}
	}
	s.Compress()
	other.Compress()

	if other.count == 0 {
		return nil
	}
	if s.count == 0 {
		s.sampled = append(s.sampled[:0], other.sampled...)
		s.count = other.count
		return nil
	}

	a, b := s.sampled, other.sampled
	merged := make([]Sample, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Value < b[j].Value {
			merged = append(merged, widen(a[i], b, j))
			i++
		} else {
			merged = append(merged, widen(b[j], a, i))
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)

	s.sampled = merged
	s.count += other.count
	s.coalesce()
	s.coalesced = true
	return nil
}

// widen returns t with its delta increased for landing between seq[k-1] and
// seq[k]. Samples at or beyond the other sequence's extremes are unchanged.
func widen(t Sample, seq []Sample, k int) Sample {
	if k == 0 || k >= len(seq) {
		return t
	}
	lo, hi := seq[k-1], seq[k]
	if inc := lo.G + lo.Delta + hi.G - 1; inc > 0 {
		t.Delta += inc
	}
	return t
}

// Query returns a value whose true rank is within the error bound of
// probability p. The summary is compressed first, so a query after an insert
// is a write; on an already compressed summary the call is read-only and
// safe to run concurrently. Returns ErrOutOfRange when no observations were
// inserted and an InvalidArgumentError when p is outside [0, 1].
func (s *Summary) Query(p float64) (float64, error) {
	if p < 0 || p > 1 {
		return 0, &InvalidArgumentError{Msg: fmt.Sprintf("probability %v outside [0, 1]", p)}
	}
	s.Compress()
	if s.count == 0 {
		return 0, ErrOutOfRange
	}
	if p <= s.cfg.Error {
		return s.sampled[0].Value, nil
	}
	if p >= 1-s.cfg.Error {
		return s.sampled[len(s.sampled)-1].Value, nil
	}

	rank := int64(math.Round(p * float64(s.count)))
	tolerance := int64(math.Floor(s.cfg.Error * float64(s.count)))

	var gsum int64
	for i, sm := range s.sampled {
		gsum += sm.G
		if gsum+sm.Delta > rank+tolerance {
			if i == 0 {
				return sm.Value, nil
			}
			return s.sampled[i-1].Value, nil
		}
	}
	return s.sampled[len(s.sampled)-1].Value, nil
}

// RankBounds returns the admissible true-rank window [lo, hi] for a value
// answered at probability p: floor((p-2e)*N) and ceil((p+2e)*N), clamped to
// [0, N].
func (s *Summary) RankBounds(p float64) (lo, hi int64) {
	n := float64(s.Count())
	lo = int64(math.Floor((p - 2*s.cfg.Error) * n))
	hi = int64(math.Ceil((p + 2*s.cfg.Error) * n))
	if lo < 0 {
		lo = 0
	}
	if hi > int64(n) {
		hi = int64(n)
	}
	return lo, hi
}

// Samples returns a copy of the retained sample sequence, buffer included
// after a forced compress. Intended for diagnostics.
func (s *Summary) Samples() []Sample {
	s.Compress()
	out := make([]Sample, len(s.sampled))
	copy(out, s.sampled)
	return out
}
