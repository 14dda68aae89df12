package binning

import (
	"fmt"

	"github.com/featurebin/qsketch/pkg/sketch"
)

// SplitPoints queries each column's summary at the binNum-1 equally spaced
// probabilities i/binNum and returns the deduplicated boundary sequences.
// Ties at adjacent quantile boundaries are expected on discrete or skewed
// columns and are collapsed, so a column's sequence is strictly increasing
// with length between 0 and binNum-1.
func SplitPoints(summaries SummaryMap, binNum int) (map[string][]float64, error) {
	if binNum < 2 {
		return nil, &sketch.InvalidArgumentError{Msg: fmt.Sprintf("bin number %d below 2", binNum)}
	}

	out := make(map[string][]float64, len(summaries))
	for name, cs := range summaries {
		points := make([]float64, 0, binNum-1)
		for i := 1; i < binNum; i++ {
			v, err := cs.Query(float64(i) / float64(binNum))
			if err != nil {
				return nil, fmt.Errorf("binning: split points for column %q: %w", name, err)
			}
			if len(points) > 0 && v == points[len(points)-1] {
				continue
			}
			points = append(points, v)
		}
		out[name] = points
	}
	return out, nil
}
