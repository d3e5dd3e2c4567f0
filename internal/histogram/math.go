// Package histogram computes binned frequency charts with d3-style nice ranges.
package histogram

import (
	"math"

	"github.com/embedviz/vizframe/errs"
)

// Bucket count bounds applied to caller-supplied values.
const (
	MinBuckets = 2
	MaxBuckets = 500
)

// tickIncrement picks a step size that lands ticks on round numbers, following
// d3-array. Steps below 1 are returned as negative inverses so later grid
// arithmetic stays exact.
func tickIncrement(start, stop float64, nTicks int) float64 {
	step := (stop - start) / math.Max(0, float64(nTicks))
	power := math.Floor(math.Log10(step))
	err := step / math.Pow(10, power)

	var inc float64
	switch {
	case err >= math.Sqrt(50):
		inc = 10
	case err >= math.Sqrt(10):
		inc = 5
	case err >= math.Sqrt2:
		inc = 2
	default:
		inc = 1
	}

	if power >= 0 {
		return inc * math.Pow(10, power)
	}
	return -math.Pow(10, -power) / inc
}

// NiceRange widens [min(values), max(values)] to a (low, high, n) grid whose
// ticks land on round numbers. When every value already sits on the tick grid
// the top is pushed out one extra step so the largest values get their own
// bucket instead of sharing the fence.
func NiceRange(values []float64, nBins int) (float64, float64, int) {
	start, stop := minMax(values)
	step := tickIncrement(start, stop, nBins)

	additionalStep := 0.0
	if quantized(values, step) {
		additionalStep = 1
	}

	if step > 0 {
		start = math.Floor(start/step) * step
		stop = math.Ceil(stop/step) * step
		step = tickIncrement(start, stop, nBins)
	} else {
		start = math.Ceil(start*step) / step
		stop = math.Floor(stop*step) / step
		step = tickIncrement(start, stop, nBins)
	}

	// The d3 algorithm applies the increment twice: the first pass can shift
	// the range far enough that a better step becomes available.
	if step > 0 {
		start = math.Floor(start/step) * step
		stop = (math.Ceil(stop/step) + additionalStep) * step
		return start, stop, int(math.Round((stop - start) / step))
	}
	start = math.Ceil(start*step) / step
	stop = (math.Floor(stop*step) - additionalStep) / step
	return start, stop, int(math.Round(-step * (stop - start)))
}

func quantized(values []float64, step float64) bool {
	if step > 0 {
		for _, v := range values {
			if math.Mod(v, step) != 0 {
				return false
			}
		}
		return true
	}
	// Negative step is an inverse increment; values*step integral means the
	// value sits on the 1/|step| grid.
	for _, v := range values {
		if math.Mod(v*step, 1) != 0 {
			return false
		}
	}
	return true
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// SafeValues drops NaN and infinite entries.
func SafeValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ClampBuckets bounds a requested bucket count to [MinBuckets, MaxBuckets].
func ClampBuckets(n int) int {
	if n < MinBuckets {
		return MinBuckets
	}
	if n > MaxBuckets {
		return MaxBuckets
	}
	return n
}

// Histogram bins values into a nice range. It returns n counts and n+1 tick
// edges; the requested bucket count is advisory and may shrink or grow to fit
// the grid. Values must be finite and span at least two distinct points.
func Histogram(values []float64, nBins int) ([]int64, []float64, error) {
	if len(values) == 0 {
		return nil, nil, errs.New("histogram", errs.CodeInvalid,
			errs.WithMessage("no values to bin"))
	}
	lo, hi := minMax(values)
	if lo == hi {
		return nil, nil, errs.New("histogram", errs.CodeInvalid,
			errs.WithMessage("values span a single point"))
	}

	low, high, n := NiceRange(values, ClampBuckets(nBins))

	ticks := make([]float64, n+1)
	span := high - low
	for i := 0; i <= n; i++ {
		ticks[i] = low + span*float64(i)/float64(n)
	}
	ticks[n] = high

	counts := make([]int64, n)
	for _, v := range values {
		if v < low || v > high {
			continue
		}
		idx := int(math.Floor((v - low) / span * float64(n)))
		if idx >= n {
			idx = n - 1
		}
		// Correct for float drift against the actual edges.
		if idx+1 <= n-1 && v >= ticks[idx+1] {
			idx++
		} else if idx > 0 && v < ticks[idx] {
			idx--
		}
		counts[idx]++
	}
	return counts, ticks, nil
}
