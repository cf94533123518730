package survey

import (
	"log/slog"
	"math"
	"slices"

	defaults "github.com/xtxerr/seiscube/config"
	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
)

// CoordinateSystem classifies the magnitude of the survey's position values.
type CoordinateSystem string

const (
	CoordinatesUTM        CoordinateSystem = "utm"
	CoordinatesLocalGrid  CoordinateSystem = "local_grid"
	CoordinatesGeographic CoordinateSystem = "geographic"
	CoordinatesUnknown    CoordinateSystem = "unknown"
	CoordinatesAssumed    CoordinateSystem = "assumed_grid"
)

// Vector2 is a horizontal vector.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Norm returns the vector length.
func (v Vector2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// Unit returns v scaled to length 1 and false when v has no length.
func (v Vector2) Unit() (Vector2, bool) {
	n := v.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Vector2{}, false
	}
	return Vector2{X: v.X / n, Y: v.Y / n}, true
}

// Dot returns the dot product.
func (v Vector2) Dot(o Vector2) float64 { return v.X*o.X + v.Y*o.Y }

// Rotate90 returns v rotated 90 degrees counter-clockwise.
func (v Vector2) Rotate90() Vector2 { return Vector2{X: -v.Y, Y: v.X} }

// Azimuth returns the compass bearing of v in degrees, in [0, 360).
func (v Vector2) Azimuth() float64 {
	deg := math.Atan2(v.X, v.Y) * 180 / math.Pi
	deg = math.Mod(deg+360, 360)
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// Geometry describes the survey's horizontal orientation.
type Geometry struct {
	InlineDirection    Vector2          `json:"inline_direction"`
	CrosslineDirection Vector2          `json:"xline_direction"`
	InlineAzimuth      float64          `json:"inline_azimuth"`
	CrosslineAzimuth   float64          `json:"xline_azimuth"`
	RotationAngle      float64          `json:"rotation_angle"`
	CoordinateSystem   CoordinateSystem `json:"coordinate_system"`
	HasCoordinates     bool             `json:"has_coordinates"`

	ValidRecords             int    `json:"valid_records"`
	PerpendicularityEnforced bool   `json:"perpendicularity_enforced,omitempty"`
	Note                     string `json:"note,omitempty"`
}

// DefaultGeometry is the orientation assumed when positions are unusable:
// inlines run east, crosslines run north.
func DefaultGeometry() Geometry {
	return Geometry{
		InlineDirection:    Vector2{X: 1, Y: 0},
		CrosslineDirection: Vector2{X: 0, Y: 1},
		InlineAzimuth:      90,
		CrosslineAzimuth:   0,
		RotationAngle:      0,
		CoordinateSystem:   CoordinatesAssumed,
		HasCoordinates:     false,
	}
}

// Estimator derives survey orientation from trace positions.
type Estimator struct {
	// SampleLimit bounds how many leading traces are examined.
	SampleLimit int

	// MinRecords is the minimum number of usable position records.
	MinRecords int

	// PerpendicularTolerance is the largest |dot| accepted between the axes.
	PerpendicularTolerance float64

	Logger *slog.Logger
}

// NewEstimator creates an estimator with default limits.
func NewEstimator() *Estimator {
	return &Estimator{
		SampleLimit:            defaults.DefaultGeometrySampleLimit,
		MinRecords:             defaults.DefaultGeometryMinRecords,
		PerpendicularTolerance: defaults.DefaultPerpendicularTolerance,
		Logger:                 logging.Component("survey"),
	}
}

type positioned struct {
	pair GridPair
	pos  Vector2
}

// Estimate computes the geometry of the leading traces. Synthetic traces and
// traces without a non-zero position are ignored. When too little data
// remains the default geometry is returned with the reason in Note.
func (e *Estimator) Estimate(m *Mapping, records []HeaderRecord) Geometry {
	log := e.Logger
	if log == nil {
		log = logging.Component("survey")
	}

	limit := len(records)
	if e.SampleLimit > 0 && e.SampleLimit < limit {
		limit = e.SampleLimit
	}

	points := make([]positioned, 0, limit)
	for i := 0; i < limit; i++ {
		rec := records[i]
		if rec.Err != nil || m.Synthetic[i] || !rec.HasPosition {
			continue
		}
		p := m.Pairs[i]
		if p.Inline == 0 || p.Crossline == 0 || rec.X == 0 || rec.Y == 0 {
			continue
		}
		points = append(points, positioned{pair: p, pos: Vector2{X: rec.X, Y: rec.Y}})
	}

	if len(points) < e.MinRecords {
		err := errors.NewInsufficientGeometry(len(points), e.MinRecords)
		log.Warn("using default geometry", "error", err)
		g := DefaultGeometry()
		g.ValidRecords = len(points)
		g.Note = err.Error()
		return g
	}

	inlineSamples := directionSamples(points,
		func(p positioned) int32 { return p.pair.Crossline },
		func(p positioned) int32 { return p.pair.Inline })
	xlineSamples := directionSamples(points,
		func(p positioned) int32 { return p.pair.Inline },
		func(p positioned) int32 { return p.pair.Crossline })

	inlineDir, okIL := meanDirection(inlineSamples)
	xlineDir, okXL := meanDirection(xlineSamples)

	switch {
	case !okIL && !okXL:
		log.Warn("using default geometry", "error", errors.Wrap(errors.ErrInsufficientGeometry, "no direction samples on either axis"))
		g := DefaultGeometry()
		g.ValidRecords = len(points)
		g.Note = "no direction samples on either axis"
		return g
	case !okIL:
		// Inverse of Rotate90.
		inlineDir = Vector2{X: xlineDir.Y, Y: -xlineDir.X}
	case !okXL:
		xlineDir = inlineDir.Rotate90()
	}

	g := Geometry{
		InlineDirection: inlineDir,
		HasCoordinates:  true,
		ValidRecords:    len(points),
	}

	if math.Abs(inlineDir.Dot(xlineDir)) > e.PerpendicularTolerance {
		xlineDir, _ = inlineDir.Rotate90().Unit()
		g.PerpendicularityEnforced = true
	}
	g.CrosslineDirection = xlineDir

	g.InlineAzimuth = inlineDir.Azimuth()
	g.CrosslineAzimuth = xlineDir.Azimuth()
	g.RotationAngle = g.CrosslineAzimuth
	g.CoordinateSystem = classifyCoordinates(points)

	log.Debug("geometry estimated",
		"inline_azimuth", g.InlineAzimuth,
		"xline_azimuth", g.CrosslineAzimuth,
		"coordinate_system", g.CoordinateSystem,
		"records", len(points))

	return g
}

// directionSamples groups points by groupKey, orders each group by orderKey,
// and returns the unit vector from the first to the last point of every group
// with at least two members.
func directionSamples(points []positioned, groupKey, orderKey func(positioned) int32) []Vector2 {
	groups := make(map[int32][]positioned)
	var keys []int32
	for _, p := range points {
		k := groupKey(p)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], p)
	}
	slices.Sort(keys)

	var out []Vector2
	for _, k := range keys {
		g := groups[k]
		if len(g) < 2 {
			continue
		}
		slices.SortStableFunc(g, func(a, b positioned) int {
			return int(orderKey(a)) - int(orderKey(b))
		})
		first, last := g[0].pos, g[len(g)-1].pos
		if u, ok := (Vector2{X: last.X - first.X, Y: last.Y - first.Y}).Unit(); ok {
			out = append(out, u)
		}
	}
	return out
}

func meanDirection(samples []Vector2) (Vector2, bool) {
	if len(samples) == 0 {
		return Vector2{}, false
	}
	var sum Vector2
	for _, s := range samples {
		sum.X += s.X
		sum.Y += s.Y
	}
	return sum.Unit()
}

func classifyCoordinates(points []positioned) CoordinateSystem {
	if len(points) == 0 {
		return CoordinatesUnknown
	}
	var sx, sy float64
	for _, p := range points {
		sx += math.Abs(p.pos.X)
		sy += math.Abs(p.pos.Y)
	}
	n := float64(len(points))
	mx, my := sx/n, sy/n
	mean := (mx + my) / 2

	switch {
	case mean > 100_000:
		return CoordinatesUTM
	case mean > 10_000:
		return CoordinatesLocalGrid
	case mx < 180 && my < 90:
		return CoordinatesGeographic
	default:
		return CoordinatesUnknown
	}
}
