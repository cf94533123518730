package survey

import (
	"log/slog"
	"slices"

	"github.com/xtxerr/seiscube/internal/logging"
)

// GridIndex maps inline and crossline labels to dense, zero-based positions
// in ascending label order.
type GridIndex struct {
	Inlines    []int32
	Crosslines []int32

	inlineRow map[int32]int
	xlineCol  map[int32]int
}

// NewGridIndex builds an index from the distinct labels in pairs.
func NewGridIndex(pairs []GridPair) *GridIndex {
	il := make(map[int32]struct{})
	xl := make(map[int32]struct{})
	for _, p := range pairs {
		il[p.Inline] = struct{}{}
		xl[p.Crossline] = struct{}{}
	}

	g := &GridIndex{
		Inlines:    sortedKeys(il),
		Crosslines: sortedKeys(xl),
		inlineRow:  make(map[int32]int, len(il)),
		xlineCol:   make(map[int32]int, len(xl)),
	}
	for i, v := range g.Inlines {
		g.inlineRow[v] = i
	}
	for i, v := range g.Crosslines {
		g.xlineCol[v] = i
	}
	return g
}

func sortedKeys(m map[int32]struct{}) []int32 {
	out := make([]int32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Row returns the dense position of an inline label.
func (g *GridIndex) Row(inline int32) (int, bool) {
	r, ok := g.inlineRow[inline]
	return r, ok
}

// Col returns the dense position of a crossline label.
func (g *GridIndex) Col(crossline int32) (int, bool) {
	c, ok := g.xlineCol[crossline]
	return c, ok
}

// Shape returns the number of distinct inlines and crosslines.
func (g *GridIndex) Shape() (int, int) {
	return len(g.Inlines), len(g.Crosslines)
}

// Mapping is the result of mapping a header stream onto the grid.
type Mapping struct {
	Index *GridIndex

	// Pairs holds the resolved label of every trace in stream order.
	Pairs []GridPair

	// Synthetic marks traces whose label came from the fallback policy.
	Synthetic []bool

	// Fallbacks counts the synthetic traces.
	Fallbacks int
}

// Mapper resolves trace headers to grid labels.
type Mapper struct {
	Policy FallbackPolicy
	Logger *slog.Logger
}

// NewMapper creates a mapper with the synthetic grid fallback.
func NewMapper() *Mapper {
	return &Mapper{
		Policy: SyntheticGrid{},
		Logger: logging.Component("survey"),
	}
}

// Map resolves every record. It never fails: a record with a decode error or
// a zero inline or crossline is labelled by the fallback policy.
func (m *Mapper) Map(records []HeaderRecord) *Mapping {
	policy := m.Policy
	if policy == nil {
		policy = SyntheticGrid{}
	}
	log := m.Logger
	if log == nil {
		log = logging.Component("survey")
	}

	n := len(records)
	out := &Mapping{
		Pairs:     make([]GridPair, n),
		Synthetic: make([]bool, n),
	}

	for i, rec := range records {
		if rec.Err == nil && rec.Inline != 0 && rec.Crossline != 0 {
			out.Pairs[i] = GridPair{Inline: rec.Inline, Crossline: rec.Crossline}
			continue
		}
		if rec.Err != nil {
			log.Debug("header unreadable, using fallback label", "trace", i, "error", rec.Err)
		}
		out.Pairs[i] = policy.Resolve(i, n)
		out.Synthetic[i] = true
		out.Fallbacks++
	}

	if out.Fallbacks > 0 {
		log.Warn("traces labelled by fallback policy", "count", out.Fallbacks, "total", n)
	}

	out.Index = NewGridIndex(out.Pairs)
	return out
}
