package survey

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xtxerr/seiscube/internal/logging"
)

func quietMapper() *Mapper {
	return &Mapper{Policy: SyntheticGrid{}, Logger: logging.Discard()}
}

func quietEstimator() *Estimator {
	e := NewEstimator()
	e.Logger = logging.Discard()
	return e
}

func recordsFrom(headers []TraceHeader) []HeaderRecord {
	out := make([]HeaderRecord, len(headers))
	for i, h := range headers {
		out[i] = HeaderRecord{TraceHeader: h}
	}
	return out
}

func TestGridIndex_SortedDense(t *testing.T) {
	g := NewGridIndex([]GridPair{{30, 7}, {10, 5}, {20, 7}, {10, 6}})

	if diff := cmp.Diff([]int32{10, 20, 30}, g.Inlines); diff != "" {
		t.Errorf("inlines mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{5, 6, 7}, g.Crosslines); diff != "" {
		t.Errorf("crosslines mismatch (-want +got):\n%s", diff)
	}

	if r, ok := g.Row(20); !ok || r != 1 {
		t.Errorf("Row(20) = %d, %v; want 1, true", r, ok)
	}
	if c, ok := g.Col(7); !ok || c != 2 {
		t.Errorf("Col(7) = %d, %v; want 2, true", c, ok)
	}
	if _, ok := g.Row(99); ok {
		t.Error("expected unknown inline to be absent")
	}
}

func TestMapper_VerbatimLabels(t *testing.T) {
	headers := []TraceHeader{
		{Inline: 100, Crossline: 200},
		{Inline: 100, Crossline: 201},
		{Inline: 101, Crossline: 200},
		{Inline: 101, Crossline: 201},
	}

	m := quietMapper().Map(recordsFrom(headers))

	if m.Fallbacks != 0 {
		t.Fatalf("expected no fallbacks, got %d", m.Fallbacks)
	}
	for i, h := range headers {
		want := GridPair{h.Inline, h.Crossline}
		if m.Pairs[i] != want {
			t.Errorf("trace %d: got %+v, want %+v", i, m.Pairs[i], want)
		}
	}
	if il, xl := m.Index.Shape(); il != 2 || xl != 2 {
		t.Errorf("shape = (%d, %d), want (2, 2)", il, xl)
	}
}

func TestMapper_FallbackDeterministic(t *testing.T) {
	// Nine traces, all without labels: a 3x3 synthetic grid.
	headers := make([]TraceHeader, 9)
	records := recordsFrom(headers)

	m := quietMapper().Map(records)

	if m.Fallbacks != 9 {
		t.Fatalf("expected 9 fallbacks, got %d", m.Fallbacks)
	}
	for i, p := range m.Pairs {
		want := GridPair{Inline: int32(i/3 + 1), Crossline: int32(i%3 + 1)}
		if p != want {
			t.Errorf("trace %d: got %+v, want %+v", i, p, want)
		}
		if !m.Synthetic[i] {
			t.Errorf("trace %d not flagged synthetic", i)
		}
	}

	again := quietMapper().Map(records)
	if diff := cmp.Diff(m.Pairs, again.Pairs); diff != "" {
		t.Errorf("fallback not deterministic (-first +second):\n%s", diff)
	}
}

func TestMapper_DecodeErrorUsesFallback(t *testing.T) {
	records := []HeaderRecord{
		{TraceHeader: TraceHeader{Inline: 5, Crossline: 5}},
		{Err: errors.New("short read")},
		{TraceHeader: TraceHeader{Inline: 0, Crossline: 9}},
		{TraceHeader: TraceHeader{Inline: 6, Crossline: 6}},
	}

	m := quietMapper().Map(records)

	// floor(sqrt(4)) = 2
	if m.Pairs[1] != (GridPair{1, 2}) {
		t.Errorf("trace 1: got %+v, want {1 2}", m.Pairs[1])
	}
	if m.Pairs[2] != (GridPair{2, 1}) {
		t.Errorf("trace 2: got %+v, want {2 1}", m.Pairs[2])
	}
	if m.Fallbacks != 2 {
		t.Errorf("expected 2 fallbacks, got %d", m.Fallbacks)
	}
}

func TestMapper_CustomPolicy(t *testing.T) {
	mapper := quietMapper()
	mapper.Policy = FallbackFunc(func(position, total int) GridPair {
		return GridPair{Inline: -1, Crossline: int32(position)}
	})

	m := mapper.Map([]HeaderRecord{{}, {}})
	if m.Pairs[1] != (GridPair{-1, 1}) {
		t.Errorf("custom policy not used: %+v", m.Pairs[1])
	}
}

func TestSyntheticGrid_SingleTrace(t *testing.T) {
	if got := (SyntheticGrid{}).Resolve(0, 1); got != (GridPair{1, 1}) {
		t.Errorf("got %+v, want {1 1}", got)
	}
	if got := (SyntheticGrid{}).Resolve(0, 0); got != (GridPair{1, 1}) {
		t.Errorf("empty total: got %+v, want {1 1}", got)
	}
}

// gridHeaders lays out n x n traces where moving one inline steps by ilStep
// and one crossline by xlStep from origin.
func gridHeaders(n int, origin, ilStep, xlStep Vector2) []TraceHeader {
	var out []TraceHeader
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out = append(out, TraceHeader{
				Inline:      int32(i + 1),
				Crossline:   int32(j + 1),
				X:           origin.X + float64(i)*ilStep.X + float64(j)*xlStep.X,
				Y:           origin.Y + float64(i)*ilStep.Y + float64(j)*xlStep.Y,
				HasPosition: true,
			})
		}
	}
	return out
}

func estimate(t *testing.T, headers []TraceHeader) Geometry {
	t.Helper()
	records := recordsFrom(headers)
	m := quietMapper().Map(records)
	return quietEstimator().Estimate(m, records)
}

func TestEstimator_PerpendicularityEnforced(t *testing.T) {
	// Inline steps due east, crossline steps at 30 degrees off east: dot = 0.5.
	headers := gridHeaders(4,
		Vector2{X: 500000, Y: 6000000},
		Vector2{X: 25, Y: 0},
		Vector2{X: 12.5, Y: 25 * math.Sqrt(3) / 2})

	g := estimate(t, headers)

	approx := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(Vector2{1, 0}, g.InlineDirection, approx); diff != "" {
		t.Errorf("inline direction (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Vector2{0, 1}, g.CrosslineDirection, approx); diff != "" {
		t.Errorf("crossline direction (-want +got):\n%s", diff)
	}
	if !g.PerpendicularityEnforced {
		t.Error("expected perpendicularity to be enforced")
	}
	if math.Abs(g.InlineAzimuth-90) > 1e-9 {
		t.Errorf("inline azimuth = %v, want 90", g.InlineAzimuth)
	}
	if math.Abs(g.CrosslineAzimuth) > 1e-9 {
		t.Errorf("crossline azimuth = %v, want 0", g.CrosslineAzimuth)
	}
	if g.RotationAngle != g.CrosslineAzimuth {
		t.Errorf("rotation angle %v != crossline azimuth %v", g.RotationAngle, g.CrosslineAzimuth)
	}
	if g.CoordinateSystem != CoordinatesUTM {
		t.Errorf("coordinate system = %s, want utm", g.CoordinateSystem)
	}
	if !g.HasCoordinates {
		t.Error("expected has_coordinates")
	}
}

func TestEstimator_RotatedSurvey(t *testing.T) {
	// Inline runs north-east, crossline north-west.
	s := math.Sqrt2 / 2
	headers := gridHeaders(5,
		Vector2{X: 20000, Y: 20000},
		Vector2{X: 10 * s, Y: 10 * s},
		Vector2{X: -10 * s, Y: 10 * s})

	g := estimate(t, headers)

	if g.PerpendicularityEnforced {
		t.Error("orthogonal survey should not need enforcement")
	}
	if math.Abs(g.InlineAzimuth-45) > 1e-6 {
		t.Errorf("inline azimuth = %v, want 45", g.InlineAzimuth)
	}
	if math.Abs(g.CrosslineAzimuth-315) > 1e-6 {
		t.Errorf("crossline azimuth = %v, want 315", g.CrosslineAzimuth)
	}
	if g.CoordinateSystem != CoordinatesLocalGrid {
		t.Errorf("coordinate system = %s, want local_grid", g.CoordinateSystem)
	}
}

func TestEstimator_DefaultWhenTooFewRecords(t *testing.T) {
	headers := gridHeaders(3, Vector2{X: 1000, Y: 1000}, Vector2{X: 10}, Vector2{Y: 10})[:9]

	g := estimate(t, headers)

	want := DefaultGeometry()
	want.ValidRecords = 9
	if diff := cmp.Diff(want, g, cmpopts.IgnoreFields(Geometry{}, "Note")); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
	if g.Note == "" {
		t.Error("expected a note explaining the default")
	}
}

func TestEstimator_IgnoresZeroPositions(t *testing.T) {
	headers := gridHeaders(4, Vector2{X: 1000, Y: 1000}, Vector2{X: 10}, Vector2{Y: 10})
	for i := range headers {
		if i%2 == 0 {
			headers[i].X = 0
		}
	}

	g := estimate(t, headers)
	if g.HasCoordinates {
		t.Errorf("expected default geometry with only 8 usable records, got %+v", g)
	}
}

func TestEstimator_SampleLimit(t *testing.T) {
	headers := gridHeaders(10, Vector2{X: 1000, Y: 1000}, Vector2{X: 10}, Vector2{Y: 10})
	records := recordsFrom(headers)
	m := quietMapper().Map(records)

	e := quietEstimator()
	e.SampleLimit = 5

	if g := e.Estimate(m, records); g.HasCoordinates {
		t.Error("expected default geometry when the sample limit leaves too few records")
	}
}

func TestEstimator_SingleAxisDerivesPerpendicular(t *testing.T) {
	// One crossline only: every group-by-inline has one member.
	var headers []TraceHeader
	for i := 0; i < 12; i++ {
		headers = append(headers, TraceHeader{
			Inline: int32(i + 1), Crossline: 1,
			X: 1000, Y: 1000 + float64(i)*10, HasPosition: true,
		})
	}

	g := estimate(t, headers)

	if !g.HasCoordinates {
		t.Fatal("expected estimated geometry")
	}
	if math.Abs(g.InlineAzimuth) > 1e-9 {
		t.Errorf("inline azimuth = %v, want 0", g.InlineAzimuth)
	}
	if math.Abs(g.CrosslineAzimuth-270) > 1e-9 {
		t.Errorf("crossline azimuth = %v, want 270", g.CrosslineAzimuth)
	}
}

func TestVector2_Azimuth(t *testing.T) {
	tests := []struct {
		v    Vector2
		want float64
	}{
		{Vector2{0, 1}, 0},
		{Vector2{1, 0}, 90},
		{Vector2{0, -1}, 180},
		{Vector2{-1, 0}, 270},
	}
	for _, tt := range tests {
		if got := tt.v.Azimuth(); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Azimuth(%+v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestClassifyCoordinates(t *testing.T) {
	tests := []struct {
		x, y float64
		want CoordinateSystem
	}{
		{450000, 6700000, CoordinatesUTM},
		{25000, 30000, CoordinatesLocalGrid},
		{5.3, 60.1, CoordinatesGeographic},
		{500, 800, CoordinatesUnknown},
	}
	for _, tt := range tests {
		got := classifyCoordinates([]positioned{{pos: Vector2{tt.x, tt.y}}})
		if got != tt.want {
			t.Errorf("classify(%v, %v) = %s, want %s", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestMemSource_Errors(t *testing.T) {
	src := NewMemSource([]TraceHeader{{Inline: 1, Crossline: 1}}, [][]float32{{1, 2}}, 4)
	src.HeaderErrs = map[int]error{0: errors.New("bad")}

	records := ReadHeaders(src)
	if records[0].Err == nil {
		t.Error("expected header error to be recorded")
	}
	if _, err := src.Trace(3, nil); err == nil {
		t.Error("expected error for missing trace")
	}
	if diff := cmp.Diff([]float64{0, 4}, src.SamplePositions()); diff != "" {
		t.Errorf("sample positions (-want +got):\n%s", diff)
	}
}
