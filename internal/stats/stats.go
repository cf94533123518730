// Package stats computes amplitude statistics over cube and slice data.
package stats

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	defaults "github.com/xtxerr/seiscube/config"
)

// AmplitudeStats summarizes a set of amplitudes. Standard deviation is the
// population form. Percentiles are zero when only a summary was requested.
//
// Cube statistics include zero-filled cells for grid positions no trace
// covered, so a zero can mean either "no data" or "zero amplitude".
type AmplitudeStats struct {
	Count int64
	Min   float64
	Max   float64
	Mean  float64
	Std   float64
	P1    float64
	P5    float64
	P95   float64
	P99   float64
}

// Method selects how percentiles are computed.
type Method int

const (
	// MethodAuto sorts small inputs and sketches large ones.
	MethodAuto Method = iota

	// MethodExact sorts a float64 copy of the input.
	MethodExact

	// MethodSketch streams the input through a DDSketch.
	MethodSketch
)

// String returns the config name of the method.
func (m Method) String() string {
	switch m {
	case MethodAuto:
		return "auto"
	case MethodExact:
		return "exact"
	case MethodSketch:
		return "sketch"
	default:
		return "unknown"
	}
}

// ParseMethod parses a config method name.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "auto":
		return MethodAuto, nil
	case "exact":
		return MethodExact, nil
	case "sketch":
		return MethodSketch, nil
	default:
		return MethodAuto, fmt.Errorf("unknown percentile method %q", s)
	}
}

// Engine computes full amplitude statistics.
type Engine struct {
	Method Method

	// Accuracy is the DDSketch relative accuracy.
	Accuracy float64

	// ExactLimit is the input size above which MethodAuto sketches.
	ExactLimit int
}

// DefaultEngine returns an engine with default settings.
func DefaultEngine() Engine {
	return Engine{
		Method:     MethodAuto,
		Accuracy:   defaults.DefaultSketchAccuracy,
		ExactLimit: defaults.DefaultExactLimit,
	}
}

// Compute returns min, max, mean, std and the 1st, 5th, 95th and 99th
// percentiles of values. Non-finite values count as zero.
func (e Engine) Compute(values []float32) AmplitudeStats {
	if len(values) == 0 {
		return AmplitudeStats{}
	}

	useSketch := e.Method == MethodSketch ||
		(e.Method == MethodAuto && e.ExactLimit > 0 && len(values) > e.ExactLimit)

	if useSketch {
		agg, err := NewAggregate(e.Accuracy)
		if err == nil {
			agg.AddFloat32s(values)
			return agg.Result()
		}
	}
	return Exact(values)
}

// Exact computes statistics by sorting a float64 copy of values.
// Percentiles interpolate linearly between closest ranks.
func Exact(values []float32) AmplitudeStats {
	if len(values) == 0 {
		return AmplitudeStats{}
	}

	x := toFloat64(values)
	mean, std := stat.PopMeanStdDev(x, nil)
	slices.Sort(x)

	return AmplitudeStats{
		Count: int64(len(x)),
		Min:   x[0],
		Max:   x[len(x)-1],
		Mean:  mean,
		Std:   std,
		P1:    Percentile(x, 0.01),
		P5:    Percentile(x, 0.05),
		P95:   Percentile(x, 0.95),
		P99:   Percentile(x, 0.99),
	}
}

// Summary computes min, max, mean and std without percentiles.
func Summary(values []float32) AmplitudeStats {
	if len(values) == 0 {
		return AmplitudeStats{}
	}

	x := toFloat64(values)
	mean, std := stat.PopMeanStdDev(x, nil)

	return AmplitudeStats{
		Count: int64(len(x)),
		Min:   floats.Min(x),
		Max:   floats.Max(x),
		Mean:  mean,
		Std:   std,
	}
}

// Percentile returns the p-quantile (0 <= p <= 1) of sorted data using
// linear interpolation at rank (n-1)*p.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	h := float64(n-1) * p
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= n {
		return sorted[lo]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Sanitize replaces NaN and infinities with zero in place and returns how
// many values were replaced.
func Sanitize(values []float32) int {
	n := 0
	for i, v := range values {
		if !IsFinite(v) {
			values[i] = 0
			n++
		}
	}
	return n
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloat64(values []float32) []float64 {
	x := make([]float64, len(values))
	for i, v := range values {
		if IsFinite(v) {
			x[i] = float64(v)
		}
	}
	return x
}
