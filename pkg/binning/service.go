package binning

import (
	"fmt"
	"sync"

	"github.com/featurebin/qsketch/pkg/engine"
	"github.com/featurebin/qsketch/pkg/sketch"
)

// QueryPoints selects the probabilities of a quantile query: either a single
// probability applied to every requested column, or a per-column mapping.
type QueryPoints struct {
	uniform   float64
	perColumn map[string]float64
	isUniform bool
}

// Uniform applies one probability to every requested column.
func Uniform(p float64) QueryPoints {
	return QueryPoints{uniform: p, isUniform: true}
}

// PerColumn gives each column its own probability.
func PerColumn(points map[string]float64) QueryPoints {
	return QueryPoints{perColumn: points}
}

// QueryPointsFrom converts a dynamic value (e.g. decoded JSON) into
// QueryPoints. Numbers become Uniform; string-keyed numeric mappings become
// PerColumn; anything else is an InvalidArgumentError.
func QueryPointsFrom(v any) (QueryPoints, error) {
	switch x := v.(type) {
	case float64:
		return Uniform(x), nil
	case float32:
		return Uniform(float64(x)), nil
	case int:
		return Uniform(float64(x)), nil
	case int64:
		return Uniform(float64(x)), nil
	case map[string]float64:
		return PerColumn(x), nil
	case map[string]any:
		points := make(map[string]float64, len(x))
		for name, pv := range x {
			p, ok := pv.(float64)
			if !ok {
				return QueryPoints{}, &sketch.InvalidArgumentError{
					Msg: fmt.Sprintf("query point for column %q is %T, want number", name, pv)}
			}
			points[name] = p
		}
		return PerColumn(points), nil
	default:
		return QueryPoints{}, &sketch.InvalidArgumentError{
			Msg: fmt.Sprintf("query points are %T, want a probability or a column mapping", v)}
	}
}

// Resolve expands the query points to one probability per requested column.
// For a per-column mapping the requested column list is ignored, matching
// the mapping's own keys.
func (q QueryPoints) Resolve(columns []string) map[string]float64 {
	if q.isUniform {
		targets := make(map[string]float64, len(columns))
		for _, name := range columns {
			targets[name] = q.uniform
		}
		return targets
	}
	return q.perColumn
}

// Service answers quantile queries and split-point requests against a fixed
// dataset. The per-column summary map is built once, on first use, by a
// shard-parallel map phase and a pairwise reduce; every later call reuses
// the published map. There is no invalidation: a Service is tied to one
// dataset version for its lifetime.
type Service struct {
	cfg    Config
	shards [][]Row

	buildOnce sync.Once
	summaries SummaryMap
	buildErr  error
}

// NewService creates a query service over pre-partitioned shards.
func NewService(cfg Config, shards [][]Row) *Service {
	return &Service{cfg: cfg, shards: shards}
}

// Summaries returns the memoized summary map, building it on first call.
// The map is published only after it is fully built, total counts assigned
// and every summary compressed, so concurrent readers never observe a
// partial build and later queries are read-only.
func (s *Service) Summaries() (SummaryMap, error) {
	s.buildOnce.Do(func() {
		partials := engine.ParallelMap(s.shards, func(shard []Row) SummaryMap {
			return BuildPartitionSummaries(shard, s.cfg)
		})
		merged, err := engine.Reduce(partials, MergeSummaryMaps)
		if err != nil {
			s.buildErr = err
			return
		}
		if merged == nil {
			merged = BuildPartitionSummaries(nil, s.cfg)
		}
		if s.cfg.Sparse {
			var total int64
			for _, sh := range s.shards {
				total += int64(len(sh))
			}
			if err := AssignTotalCounts(merged, total); err != nil {
				s.buildErr = err
				return
			}
		}
		// Compress everything before publishing so the map is read-only
		// afterwards and concurrent queries need no locking.
		for _, cs := range merged {
			cs.Compress()
		}
		s.summaries = merged
	})
	return s.summaries, s.buildErr
}

// Query answers one approximate quantile per column. With Uniform points the
// probability applies to each requested column; with PerColumn points the
// mapping's own keys are queried. A column without a summary is a
// KeyNotFoundError.
func (s *Service) Query(columns []string, points QueryPoints) (map[string]float64, error) {
	summaries, err := s.Summaries()
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64)
	for name, p := range points.Resolve(columns) {
		cs, ok := summaries[name]
		if !ok {
			return nil, &KeyNotFoundError{Column: name}
		}
		v, err := cs.Query(p)
		if err != nil {
			return nil, fmt.Errorf("binning: query column %q: %w", name, err)
		}
		result[name] = v
	}
	return result, nil
}

// FitSplitPoints derives the configured BinNum-1 split points per column
// from the memoized summaries.
func (s *Service) FitSplitPoints() (map[string][]float64, error) {
	summaries, err := s.Summaries()
	if err != nil {
		return nil, err
	}
	return SplitPoints(summaries, s.cfg.BinNum)
}
