package volume

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/stats"
	"github.com/xtxerr/seiscube/internal/survey"
)

// Builder assembles a Cube from a trace stream.
type Builder struct {
	Mapper    *survey.Mapper
	Estimator *survey.Estimator
	Stats     stats.Engine
	Logger    *slog.Logger
}

// NewBuilder creates a builder with default components.
func NewBuilder() *Builder {
	return &Builder{
		Mapper:    survey.NewMapper(),
		Estimator: survey.NewEstimator(),
		Stats:     stats.DefaultEngine(),
		Logger:    logging.Component("volume"),
	}
}

// BuildReport describes what happened while building a cube.
type BuildReport struct {
	// Traces is the number of traces in the stream.
	Traces int

	// Placed is the number of traces written into the cube.
	Placed int

	// Skipped counts traces whose samples could not be read.
	Skipped int

	// Synthetic counts traces labelled by the fallback policy.
	Synthetic int

	// Duplicates counts traces that overwrote an earlier trace at the same
	// grid position. The later trace wins.
	Duplicates int

	// NonFinite counts NaN and infinite samples replaced with zero.
	NonFinite int

	Elapsed time.Duration
}

// Build reads every header and trace of src and returns the cube.
// The stream failing as a whole (no traces, no samples) is a format error;
// individual unreadable traces are skipped.
func (b *Builder) Build(src survey.TraceSource) (*Cube, *BuildReport, error) {
	start := time.Now()
	log := b.Logger
	if log == nil {
		log = logging.Component("volume")
	}

	n := src.TraceCount()
	ns := src.SampleCount()
	if n <= 0 {
		return nil, nil, errors.NewFormat("trace stream is empty", nil)
	}
	if ns <= 0 {
		return nil, nil, errors.NewFormat("traces have no samples", nil)
	}

	mapper := b.Mapper
	if mapper == nil {
		mapper = survey.NewMapper()
	}
	estimator := b.Estimator
	if estimator == nil {
		estimator = survey.NewEstimator()
	}

	records := survey.ReadHeaders(src)
	mapping := mapper.Map(records)
	geometry := estimator.Estimate(mapping, records)

	nIL, nXL := mapping.Index.Shape()
	total := nIL * nXL * ns
	if total/ns != nIL*nXL {
		return nil, nil, errors.NewFormat(fmt.Sprintf("grid %dx%dx%d is too large", nIL, nXL, ns), nil)
	}

	report := &BuildReport{Traces: n, Synthetic: mapping.Fallbacks}
	data := make([]float32, total)
	filled := make([]bool, nIL*nXL)

	var buf []float32
	for i := 0; i < n && i < len(mapping.Pairs); i++ {
		pair := mapping.Pairs[i]
		row, okR := mapping.Index.Row(pair.Inline)
		col, okC := mapping.Index.Col(pair.Crossline)
		if !okR || !okC {
			report.Skipped++
			continue
		}

		trace, err := src.Trace(i, buf)
		if err != nil {
			log.Debug("skipping unreadable trace", "trace", i, "error", err)
			report.Skipped++
			continue
		}
		buf = trace

		cell := row*nXL + col
		if filled[cell] {
			report.Duplicates++
		}
		filled[cell] = true

		dst := data[cell*ns : (cell+1)*ns]
		m := copy(dst, trace)
		clear(dst[m:])
		report.NonFinite += stats.Sanitize(dst)
		report.Placed++
	}

	if report.Skipped > 0 {
		log.Warn("traces skipped", "count", report.Skipped, "total", n)
	}
	if report.Duplicates > 0 {
		log.Warn("duplicate grid positions, later traces kept", "count", report.Duplicates)
	}

	samples := make([]float64, ns)
	copy(samples, src.SamplePositions())

	cube, err := NewCube(data, mapping.Index.Inlines, mapping.Index.Crosslines, samples)
	if err != nil {
		return nil, nil, err
	}
	cube.Geometry = geometry
	cube.Stats = b.Stats.Compute(data)

	report.Elapsed = time.Since(start)
	log.Info("cube built",
		"inlines", nIL,
		"crosslines", nXL,
		"samples", ns,
		"size_mb", fmt.Sprintf("%.1f", cube.SizeMB()),
		"placed", report.Placed,
		"elapsed", report.Elapsed)

	return cube, report, nil
}
