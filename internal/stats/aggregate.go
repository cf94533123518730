package stats

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Aggregate maintains running amplitude statistics in constant memory.
// Mean and variance use Welford's update; percentiles come from a DDSketch
// with bounded relative error.
type Aggregate struct {
	mu sync.Mutex

	count int64
	mean  float64
	m2    float64
	min   float64
	max   float64

	sketch   *ddsketch.DDSketch
	accuracy float64
}

// NewAggregate creates an aggregate whose percentiles have the given
// relative accuracy (0.01 = 1% error).
func NewAggregate(accuracy float64) (*Aggregate, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, err
	}
	return &Aggregate{
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		sketch:   sketch,
		accuracy: accuracy,
	}, nil
}

// Add adds a value. Non-finite values count as zero.
func (a *Aggregate) Add(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.add(value)
}

// AddFloat32s adds every value of a slice under one lock.
func (a *Aggregate) AddFloat32s(values []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range values {
		a.add(float64(v))
	}
}

func (a *Aggregate) add(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}

	a.count++
	delta := value - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (value - a.mean)

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	a.sketch.Add(value)
}

// Count returns the number of values added.
func (a *Aggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Merge combines another aggregate into this one.
func (a *Aggregate) Merge(other *Aggregate) error {
	if other == nil || other == a {
		return nil
	}

	other.mu.Lock()
	oc, omean, om2, omin, omax := other.count, other.mean, other.m2, other.min, other.max
	osketch := other.sketch.Copy()
	other.mu.Unlock()

	if oc == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.sketch.MergeWith(osketch); err != nil {
		return err
	}

	// Chan et al. parallel variance combination.
	n := a.count + oc
	delta := omean - a.mean
	a.m2 += om2 + delta*delta*float64(a.count)*float64(oc)/float64(n)
	a.mean += delta * float64(oc) / float64(n)
	a.count = n

	if omin < a.min {
		a.min = omin
	}
	if omax > a.max {
		a.max = omax
	}
	return nil
}

// Result returns the statistics of everything added so far.
func (a *Aggregate) Result() AmplitudeStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return AmplitudeStats{}
	}

	r := AmplitudeStats{
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
		Mean:  a.mean,
		Std:   math.Sqrt(a.m2 / float64(a.count)),
	}

	qs, err := a.sketch.GetValuesAtQuantiles([]float64{0.01, 0.05, 0.95, 0.99})
	if err == nil {
		r.P1, r.P5, r.P95, r.P99 = clamp(qs[0], r), clamp(qs[1], r), clamp(qs[2], r), clamp(qs[3], r)
	}
	return r
}

// clamp keeps sketch estimates inside the observed range.
func clamp(v float64, r AmplitudeStats) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}
