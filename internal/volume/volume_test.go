package volume

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	serrors "github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/stats"
	"github.com/xtxerr/seiscube/internal/survey"
)

func quietBuilder() *Builder {
	b := NewBuilder()
	b.Logger = logging.Discard()
	b.Mapper.Logger = logging.Discard()
	b.Estimator.Logger = logging.Discard()
	return b
}

func build(t *testing.T, src survey.TraceSource) (*Cube, *BuildReport) {
	t.Helper()
	cube, report, err := quietBuilder().Build(src)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return cube, report
}

// fourTraces is a 2x2 grid with three samples per trace.
func fourTraces() *survey.MemSource {
	headers := []survey.TraceHeader{
		{Inline: 1, Crossline: 1},
		{Inline: 1, Crossline: 2},
		{Inline: 2, Crossline: 1},
		{Inline: 2, Crossline: 2},
	}
	traces := [][]float32{
		{11, 12, 13},
		{21, 22, 23},
		{31, 32, 33},
		{41, 42, 43},
	}
	return survey.NewMemSource(headers, traces, 4)
}

func TestBuild_EndToEnd(t *testing.T) {
	cube, report := build(t, fourTraces())

	if got := cube.Shape(); got != [3]int{2, 2, 3} {
		t.Fatalf("shape = %v, want [2 2 3]", got)
	}
	if report.Placed != 4 || report.Synthetic != 0 || report.Skipped != 0 {
		t.Errorf("unexpected report %+v", report)
	}

	s, err := cube.Slice(AxisSample, 0)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	want := [][]float32{{11, 21}, {31, 41}}
	if diff := cmp.Diff(want, s.Matrix()); diff != "" {
		t.Errorf("sample slice (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 2}, s.X); diff != "" {
		t.Errorf("x coordinates (-want +got):\n%s", diff)
	}
}

func TestBuild_ShapeMatchesDistinctLabels(t *testing.T) {
	headers := []survey.TraceHeader{
		{Inline: 7, Crossline: 3},
		{Inline: 5, Crossline: 9},
		{Inline: 7, Crossline: 9},
	}
	traces := [][]float32{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}, {0, 0, 0, 0, 1}}

	cube, _ := build(t, survey.NewMemSource(headers, traces, 2))

	if got := cube.Shape(); got != [3]int{2, 2, 5} {
		t.Fatalf("shape = %v, want [2 2 5]", got)
	}
	if diff := cmp.Diff([]int32{5, 7}, cube.Inlines); diff != "" {
		t.Errorf("inlines (-want +got):\n%s", diff)
	}

	// Verbatim placement at (row(inline), col(crossline)).
	for i, h := range headers {
		row := indexOf(cube.Inlines, h.Inline)
		col := indexOf(cube.Crosslines, h.Crossline)
		if diff := cmp.Diff(traces[i], cube.Trace(row, col)); diff != "" {
			t.Errorf("trace %d placement (-want +got):\n%s", i, diff)
		}
	}

	// The uncovered cell (5, 3) stays zero.
	if diff := cmp.Diff(make([]float32, 5), cube.Trace(0, 0)); diff != "" {
		t.Errorf("unfilled cell should be zero:\n%s", diff)
	}
}

func indexOf(v []int32, x int32) int {
	for i, y := range v {
		if y == x {
			return i
		}
	}
	return -1
}

func TestBuild_SanitizesNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	src := survey.NewMemSource(
		[]survey.TraceHeader{{Inline: 1, Crossline: 1}},
		[][]float32{{nan, 2, inf, float32(math.Inf(-1))}}, 4)

	cube, report := build(t, src)

	if diff := cmp.Diff([]float32{0, 2, 0, 0}, cube.Trace(0, 0)); diff != "" {
		t.Errorf("sanitized trace (-want +got):\n%s", diff)
	}
	if report.NonFinite != 3 {
		t.Errorf("non-finite count = %d, want 3", report.NonFinite)
	}
	if cube.Stats.Max != 2 || cube.Stats.Min != 0 {
		t.Errorf("unexpected cube stats %+v", cube.Stats)
	}
}

func TestBuild_LastWriteWins(t *testing.T) {
	src := survey.NewMemSource(
		[]survey.TraceHeader{
			{Inline: 1, Crossline: 1},
			{Inline: 1, Crossline: 1},
		},
		[][]float32{{1, 1}, {5, 7}}, 4)

	cube, report := build(t, src)

	if diff := cmp.Diff([]float32{5, 7}, cube.Trace(0, 0)); diff != "" {
		t.Errorf("duplicate cell should hold the later trace (-want +got):\n%s", diff)
	}
	if report.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", report.Duplicates)
	}
}

func TestBuild_SkipsUnreadableTraces(t *testing.T) {
	src := fourTraces()
	src.TraceErrs = map[int]error{1: errors.New("short read")}

	cube, report := build(t, src)

	if report.Skipped != 1 || report.Placed != 3 {
		t.Errorf("unexpected report %+v", report)
	}
	if diff := cmp.Diff([]float32{0, 0, 0}, cube.Trace(0, 1)); diff != "" {
		t.Errorf("skipped trace cell should be zero:\n%s", diff)
	}
}

func TestBuild_HeaderErrorUsesFallback(t *testing.T) {
	src := fourTraces()
	src.HeaderErrs = map[int]error{3: errors.New("garbled")}

	cube, report := build(t, src)

	// floor(sqrt(4)) = 2, so trace 3 becomes (2, 2) and lands where it was.
	if report.Synthetic != 1 {
		t.Errorf("synthetic = %d, want 1", report.Synthetic)
	}
	if diff := cmp.Diff([]float32{41, 42, 43}, cube.Trace(1, 1)); diff != "" {
		t.Errorf("fallback placement (-want +got):\n%s", diff)
	}
}

func TestBuild_EmptyStreamIsFormatError(t *testing.T) {
	_, _, err := quietBuilder().Build(survey.NewMemSource(nil, nil, 4))
	if !serrors.Is(err, serrors.ErrFormat) {
		t.Errorf("expected format error, got %v", err)
	}

	noSamples := survey.NewMemSource([]survey.TraceHeader{{Inline: 1, Crossline: 1}}, [][]float32{{}}, 4)
	_, _, err = quietBuilder().Build(noSamples)
	if !serrors.Is(err, serrors.ErrFormat) {
		t.Errorf("expected format error for zero samples, got %v", err)
	}
}

func TestBuild_StatsIncludeZeroFill(t *testing.T) {
	// Three of four cells filled with 4s; the empty cell contributes zeros.
	src := survey.NewMemSource(
		[]survey.TraceHeader{
			{Inline: 1, Crossline: 1},
			{Inline: 1, Crossline: 2},
			{Inline: 2, Crossline: 1},
		},
		[][]float32{{4}, {4}, {4}}, 4)
	// Add a (2, 2) label with no readable samples.
	src.Headers = append(src.Headers, survey.TraceHeader{Inline: 2, Crossline: 2})
	src.Traces = append(src.Traces, []float32{4})
	src.TraceErrs = map[int]error{3: errors.New("bad")}

	cube, _ := build(t, src)

	if cube.Stats.Mean != 3 || cube.Stats.Min != 0 {
		t.Errorf("expected zero-fill in stats, got %+v", cube.Stats)
	}
}

func TestSlice_Conventions(t *testing.T) {
	cube, _ := build(t, fourTraces())

	tests := []struct {
		axis  Axis
		index int
		want  [][]float32
		x, y  []float64
	}{
		// inline 1: rows = samples, cols = crosslines
		{AxisInline, 0, [][]float32{{11, 21}, {12, 22}, {13, 23}}, []float64{1, 2}, []float64{0, 4, 8}},
		// crossline 2: rows = samples, cols = inlines
		{AxisCrossline, 1, [][]float32{{21, 41}, {22, 42}, {23, 43}}, []float64{1, 2}, []float64{0, 4, 8}},
		// sample 2: rows = inlines, cols = crosslines
		{AxisSample, 2, [][]float32{{13, 23}, {33, 43}}, []float64{1, 2}, []float64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.axis.String(), func(t *testing.T) {
			s, err := cube.Slice(tt.axis, tt.index)
			if err != nil {
				t.Fatalf("slice: %v", err)
			}
			if diff := cmp.Diff(tt.want, s.Matrix()); diff != "" {
				t.Errorf("data (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.x, s.X); diff != "" {
				t.Errorf("x (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.y, s.Y); diff != "" {
				t.Errorf("y (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSlice_RoundTripAllIndices(t *testing.T) {
	headers := make([]survey.TraceHeader, 0, 12)
	traces := make([][]float32, 0, 12)
	for il := 1; il <= 3; il++ {
		for xl := 1; xl <= 4; xl++ {
			headers = append(headers, survey.TraceHeader{Inline: int32(il), Crossline: int32(xl)})
			traces = append(traces, []float32{float32(il * 100), float32(xl * 10), float32(il*xl) + 0.5, -1, 2})
		}
	}
	cube, _ := build(t, survey.NewMemSource(headers, traces, 1))
	shape := cube.Shape()

	for k := 0; k < shape[2]; k++ {
		s, err := cube.Slice(AxisSample, k)
		if err != nil {
			t.Fatalf("sample slice %d: %v", k, err)
		}
		for i := 0; i < shape[0]; i++ {
			for j := 0; j < shape[1]; j++ {
				if s.At(i, j) != cube.At(i, j, k) {
					t.Fatalf("sample %d: [%d][%d] = %v, want %v", k, i, j, s.At(i, j), cube.At(i, j, k))
				}
			}
		}
	}

	for k := 0; k < shape[0]; k++ {
		s, err := cube.Slice(AxisInline, k)
		if err != nil {
			t.Fatalf("inline slice %d: %v", k, err)
		}
		if s.Rows != shape[2] || s.Cols != shape[1] {
			t.Fatalf("inline slice shape = (%d, %d), want (%d, %d)", s.Rows, s.Cols, shape[2], shape[1])
		}
		for smp := 0; smp < shape[2]; smp++ {
			for c := 0; c < shape[1]; c++ {
				if s.At(smp, c) != cube.At(k, c, smp) {
					t.Fatalf("inline %d: [%d][%d] = %v, want %v", k, smp, c, s.At(smp, c), cube.At(k, c, smp))
				}
			}
		}
	}
}

func TestSlice_OutOfRange(t *testing.T) {
	cube, _ := build(t, fourTraces())

	for _, axis := range Axes {
		for _, idx := range []int{-1, cube.Len(axis)} {
			_, err := cube.Slice(axis, idx)
			if !serrors.Is(err, serrors.ErrOutOfRange) {
				t.Errorf("%s[%d]: expected out of range, got %v", axis, idx, err)
			}
		}
	}
}

func TestSlice_Stats(t *testing.T) {
	cube, _ := build(t, fourTraces())

	s, err := cube.Slice(AxisSample, 0)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	want := stats.Summary([]float32{11, 21, 31, 41})
	if s.Stats != want {
		t.Errorf("slice stats = %+v, want %+v", s.Stats, want)
	}
}

func TestSliceFromData(t *testing.T) {
	cube, _ := build(t, fourTraces())

	orig, _ := cube.Slice(AxisInline, 1)
	rebuilt, err := cube.SliceFromData(AxisInline, 1, orig.Rows, orig.Cols, append([]float32(nil), orig.Data...))
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if diff := cmp.Diff(orig, rebuilt); diff != "" {
		t.Errorf("rebuilt slice (-want +got):\n%s", diff)
	}

	if _, err := cube.SliceFromData(AxisInline, 1, 2, 2, make([]float32, 4)); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestParseAxis(t *testing.T) {
	tests := map[string]Axis{
		"inline":    AxisInline,
		"xline":     AxisCrossline,
		"crossline": AxisCrossline,
		"sample":    AxisSample,
	}
	for in, want := range tests {
		got, err := ParseAxis(in)
		if err != nil || got != want {
			t.Errorf("ParseAxis(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseAxis("diagonal"); !serrors.Is(err, serrors.ErrInvalidAxis) {
		t.Errorf("expected invalid axis error, got %v", err)
	}
}
