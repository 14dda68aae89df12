package sketch

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummaryRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	s := New(Config{Error: 0.01, HeadSize: 64, AbnormalList: []float64{-999}})
	for i := 0; i < 5000; i++ {
		s.Insert(rng.NormFloat64() * 10)
	}

	data, err := s.MarshalBinary()
	require.NoError(t, err)

	decoded, err := UnmarshalSummary(data)
	require.NoError(t, err)
	require.Equal(t, s.Count(), decoded.Count())
	require.Equal(t, s.Config(), decoded.Config())

	for _, p := range []float64{0.1, 0.5, 0.9} {
		want, err := s.Query(p)
		require.NoError(t, err)
		got, err := decoded.Query(p)
		require.NoError(t, err)
		require.Equal(t, want, got, "p=%v", p)
	}
}

func TestSparseSummaryRoundTrip(t *testing.T) {
	s := NewSparse(Config{})
	for i := 0; i < 10; i++ {
		s.Insert(5)
	}
	require.NoError(t, s.SetTotalCount(1000))

	data, err := s.MarshalBinary()
	require.NoError(t, err)

	decoded, err := UnmarshalSparseSummary(data)
	require.NoError(t, err)
	require.Equal(t, s.ExplicitCount(), decoded.ExplicitCount())
	total, ok := decoded.TotalCount()
	require.True(t, ok)
	require.Equal(t, int64(1000), total)

	got, err := decoded.Query(0.999)
	require.NoError(t, err)
	require.Equal(t, 5.0, got)
	got, err = decoded.Query(0.5)
	require.NoError(t, err)
	require.Equal(t, 0.0, got)
}

func TestUnmarshalRejectsBadPayloads(t *testing.T) {
	_, err := UnmarshalSummary(nil)
	require.Error(t, err)
	_, err = UnmarshalSummary([]byte{99, 0, 0, 0})
	require.Error(t, err)

	s := New(Config{})
	s.Insert(1)
	data, err := s.MarshalBinary()
	require.NoError(t, err)
	_, err = UnmarshalSummary(data[:len(data)-1])
	require.Error(t, err)
	_, err = UnmarshalSparseSummary(data)
	require.Error(t, err)
}
