package sketch

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExactQuantiles(t *testing.T) {
	s := New(Config{Error: 0})
	for v := 1; v <= 100; v++ {
		s.Insert(float64(v))
	}

	for _, tt := range []struct {
		p    float64
		want float64
	}{
		{0.25, 25},
		{0.5, 50},
		{0.75, 75},
		{1.0, 100},
		{0.0, 1},
	} {
		got, err := s.Query(tt.p)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "p=%v", tt.p)
	}
}

func TestErrorBound(t *testing.T) {
	const n = 2000
	const eps = 0.01

	rng := rand.New(rand.NewSource(7))
	s := New(Config{Error: eps, HeadSize: 128, CompressThres: 64})
	for _, v := range rng.Perm(n) {
		s.Insert(float64(v + 1)) // values 1..n, rank(v) == v
	}

	for _, p := range []float64{0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99} {
		got, err := s.Query(p)
		require.NoError(t, err)
		lo, hi := s.RankBounds(p)
		rank := int64(got)
		require.GreaterOrEqual(t, rank, lo, "p=%v returned %v", p, got)
		require.LessOrEqual(t, rank, hi, "p=%v returned %v", p, got)
	}
}

func TestCompressionSafety(t *testing.T) {
	const eps = 0.05
	rng := rand.New(rand.NewSource(11))
	s := New(Config{Error: eps, HeadSize: 50, CompressThres: 20})
	for i := 0; i < 1000; i++ {
		s.Insert(rng.Float64() * 100)
	}
	s.Compress()

	budget := int64(math.Ceil(2 * eps * float64(s.Count())))
	for _, sm := range s.Samples() {
		require.LessOrEqual(t, sm.G+sm.Delta, budget)
		require.GreaterOrEqual(t, sm.G, int64(1))
		require.GreaterOrEqual(t, sm.Delta, int64(0))
	}
}

func TestCompressionBoundsMemory(t *testing.T) {
	s := New(Config{Error: 0.01, HeadSize: 100, CompressThres: 50})
	for i := 0; i < 100000; i++ {
		s.Insert(float64(i))
	}
	s.Compress()
	// With eps=0.01 the retained sequence stays around 1/(2*eps) samples.
	require.Less(t, s.SampleCount(), 500)
	require.Equal(t, int64(100000), s.Count())
}

func TestMergeEmptyIdentity(t *testing.T) {
	cfg := Config{Error: 0.01}

	full := New(cfg)
	for v := 1; v <= 50; v++ {
		full.Insert(float64(v))
	}
	want, err := full.Query(0.5)
	require.NoError(t, err)

	require.NoError(t, full.Merge(New(cfg)))
	require.NoError(t, full.Merge(nil))
	got, err := full.Query(0.5)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, int64(50), full.Count())

	empty := New(cfg)
	require.NoError(t, empty.Merge(full))
	got, err = empty.Query(0.5)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMergeMatchesUnpartitioned(t *testing.T) {
	const n = 1000
	const eps = 0.01
	cfg := Config{Error: eps, HeadSize: 64, CompressThres: 32}

	rng := rand.New(rand.NewSource(3))
	values := rng.Perm(n)

	single := New(cfg)
	shards := make([]*Summary, 8)
	for i := range shards {
		shards[i] = New(cfg)
	}
	for i, v := range values {
		single.Insert(float64(v + 1))
		shards[i%len(shards)].Insert(float64(v + 1))
	}

	merged := New(cfg)
	for _, sh := range shards {
		require.NoError(t, merged.Merge(sh))
	}
	require.Equal(t, single.Count(), merged.Count())

	// A left fold over k shards accumulates at most k times the configured
	// error, so every retained sample must respect the summed budget.
	budget := int64(math.Ceil(2 * eps * float64(len(shards)) * float64(merged.Count())))
	for _, sm := range merged.Samples() {
		require.LessOrEqual(t, sm.G+sm.Delta, budget)
		require.GreaterOrEqual(t, sm.G, int64(1))
		require.GreaterOrEqual(t, sm.Delta, int64(0))
	}

	for _, p := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		got, err := merged.Query(p)
		require.NoError(t, err)
		lo, hi := merged.RankBounds(p)
		rank := int64(got)
		require.GreaterOrEqual(t, rank, lo, "p=%v", p)
		require.LessOrEqual(t, rank, hi, "p=%v", p)
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	cfg := Config{Error: 0.01}

	build := func(lo, hi int) *Summary {
		s := New(cfg)
		for v := lo; v <= hi; v++ {
			s.Insert(float64(v))
		}
		return s
	}

	ab := build(1, 50)
	require.NoError(t, ab.Merge(build(51, 100)))
	ba := build(51, 100)
	require.NoError(t, ba.Merge(build(1, 50)))

	for _, p := range []float64{0.25, 0.5, 0.75} {
		va, err := ab.Query(p)
		require.NoError(t, err)
		vb, err := ba.Query(p)
		require.NoError(t, err)
		require.InDelta(t, va, vb, 2*0.01*100+1, "p=%v", p)
	}
}

func TestMergeConfigMismatch(t *testing.T) {
	a := New(Config{Error: 0.01})
	b := New(Config{Error: 0.001})
	a.Insert(1)
	b.Insert(2)

	err := a.Merge(b)
	var mismatch *ConfigMismatchError
	require.ErrorAs(t, err, &mismatch)

	c := New(Config{Error: 0.01, CompressThres: 99})
	c.Insert(3)
	require.ErrorAs(t, a.Merge(c), &mismatch)
}

func TestQueryEmpty(t *testing.T) {
	s := New(Config{})
	_, err := s.Query(0.5)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestQueryInvalidProbability(t *testing.T) {
	s := New(Config{})
	s.Insert(1)

	var invalid *InvalidArgumentError
	_, err := s.Query(-0.1)
	require.ErrorAs(t, err, &invalid)
	_, err = s.Query(1.5)
	require.ErrorAs(t, err, &invalid)
}

func TestAbnormalValuesSkipped(t *testing.T) {
	clean := New(Config{Error: 0})
	dirty := New(Config{Error: 0, AbnormalList: []float64{-999, -1}})
	for v := 1; v <= 20; v++ {
		clean.Insert(float64(v))
		dirty.Insert(float64(v))
		dirty.Insert(-999)
	}
	dirty.Insert(-1)

	require.Equal(t, clean.Count(), dirty.Count())
	want, err := clean.Query(0.5)
	require.NoError(t, err)
	got, err := dirty.Query(0.5)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRankBoundsClamped(t *testing.T) {
	s := New(Config{Error: 0.1})
	for v := 1; v <= 10; v++ {
		s.Insert(float64(v))
	}
	lo, hi := s.RankBounds(0)
	require.Equal(t, int64(0), lo)
	lo, hi = s.RankBounds(1)
	require.Equal(t, int64(10), hi)
	require.Equal(t, int64(8), lo) // floor((1 - 2*0.1) * 10)
}

func TestConcurrentQueriesAfterCompress(t *testing.T) {
	s := New(Config{Error: 0.01, HeadSize: 64, CompressThres: 32})
	for v := 1; v <= 2000; v++ {
		s.Insert(float64(v))
	}
	s.Compress()
	retained := s.SampleCount()

	const workers = 4
	probs := []float64{0.1, 0.25, 0.5, 0.75, 0.9}
	results := make([][]float64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for _, p := range probs {
				v, err := s.Query(p)
				if err != nil {
					errs[g] = err
					return
				}
				results[g] = append(results[g], v)
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < workers; g++ {
		require.NoError(t, errs[g])
		require.Equal(t, results[0], results[g], "worker %d", g)
	}
	// Queries on a compressed summary are read-only.
	require.Equal(t, retained, s.SampleCount())
}
