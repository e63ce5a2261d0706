package raster

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

// FisherJenks computes natural-breaks class boundaries for the values: the
// partition into k classes minimizing within-class sum of squared deviations
// (the Fisher exact algorithm, dynamic programming over sorted values).
// It returns the k-1 interior boundaries in ascending order; a value v falls
// in class i when v <= breaks[i], and in the last class otherwise.
func FisherJenks(values []float64, k int) ([]float64, error) {
	if k < 2 {
		return nil, eris.Errorf("raster: need at least 2 classes, got %d", k)
	}

	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return nil, eris.New("raster: no values to classify")
	}
	sort.Float64s(x)

	// Degenerate inputs: fewer distinct values than classes.
	distinct := uniqueSorted(x)
	if len(distinct) <= k {
		if len(distinct) == 1 {
			return nil, eris.New("raster: all values identical, no breaks")
		}
		return distinct[:len(distinct)-1], nil
	}

	n := len(x)

	// Prefix sums of values and squares for O(1) within-class variance.
	prefix := make([]float64, n+1)
	prefixSq := make([]float64, n+1)
	sq := make([]float64, n)
	for i, v := range x {
		sq[i] = v * v
	}
	floats.CumSum(prefix[1:], x)
	floats.CumSum(prefixSq[1:], sq)

	// ssd is the sum of squared deviations of x[i..j] inclusive.
	ssd := func(i, j int) float64 {
		cnt := float64(j - i + 1)
		s := prefix[j+1] - prefix[i]
		s2 := prefixSq[j+1] - prefixSq[i]
		return s2 - s*s/cnt
	}

	const inf = math.MaxFloat64
	// cost[c][j]: minimal total deviation splitting x[0..j] into c+1 classes.
	cost := make([][]float64, k)
	split := make([][]int, k)
	for c := range cost {
		cost[c] = make([]float64, n)
		split[c] = make([]int, n)
	}
	for j := 0; j < n; j++ {
		cost[0][j] = ssd(0, j)
	}
	for c := 1; c < k; c++ {
		for j := c; j < n; j++ {
			best := inf
			bestI := c
			for i := c; i <= j; i++ {
				cand := cost[c-1][i-1] + ssd(i, j)
				if cand < best {
					best = cand
					bestI = i
				}
			}
			cost[c][j] = best
			split[c][j] = bestI
		}
	}

	// Walk the split table back to the k-1 boundary values.
	breaks := make([]float64, k-1)
	j := n - 1
	for c := k - 1; c >= 1; c-- {
		i := split[c][j]
		breaks[c-1] = x[i-1]
		j = i - 1
	}

	return breaks, nil
}

// ClassifyBreaks maps each cell to its class index 0..len(breaks) using the
// interior boundaries from FisherJenks. NoData stays NoData.
func ClassifyBreaks(b *Band, breaks []float64, name string) *Band {
	out := NewBand(b.Grid, name)
	for i, v := range b.Cells {
		if math.IsNaN(v) {
			continue
		}
		class := len(breaks)
		for c, upper := range breaks {
			if v <= upper {
				class = c
				break
			}
		}
		out.Cells[i] = float64(class)
	}
	return out
}

func uniqueSorted(sorted []float64) []float64 {
	out := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
