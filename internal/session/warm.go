package session

import (
	"context"
	"sort"
	"time"

	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/volume"
)

// warmPollInterval is how often a paused warm re-checks backpressure.
const warmPollInterval = 50 * time.Millisecond

// WarmTarget is one slice to warm.
type WarmTarget struct {
	Axis  volume.Axis
	Index int
}

// WarmPlan lists the slices warmed for a cube of the given shape and size.
// Cubes up to fullLimitMB warm every slice; larger cubes warm the radius
// slices either side of each axis center. Axes are visited in order inline,
// crossline, sample.
func WarmPlan(shape [3]int, sizeMB, fullLimitMB float64, radius int) []WarmTarget {
	var out []WarmTarget
	for a, axis := range volume.Axes {
		n := shape[a]
		lo, hi := 0, n-1
		if sizeMB > fullLimitMB {
			center := n / 2
			lo = max(0, center-radius)
			hi = min(n-1, center+radius)
		}
		for i := lo; i <= hi; i++ {
			out = append(out, WarmTarget{Axis: axis, Index: i})
		}
	}
	return out
}

// WarmResult describes a warm run.
type WarmResult struct {
	CubeID  string
	Planned int
	Warmed  int
	Failed  int
	Paused  time.Duration
	Elapsed time.Duration

	// Skipped is set when nothing was attempted, with the reason.
	Skipped string

	// Interrupted is set when the run stopped before finishing its plan.
	Interrupted bool
}

// Warm extracts, caches and uploads the planned slices of the active cube.
// It runs only with an available store. It pauses while the upload queue is
// under pressure and stops when the active cube changes.
func (s *Session) Warm(ctx context.Context) WarmResult {
	start := time.Now()
	h := s.active.Load()
	if h == nil {
		return WarmResult{Skipped: "no cube loaded"}
	}
	res := WarmResult{CubeID: h.id}
	switch {
	case h.deleted.Load():
		res.Skipped = "cube deleted"
		return res
	case !s.opts.Warm.Enabled:
		res.Skipped = "disabled"
		return res
	case !s.bridge.Available():
		res.Skipped = "store unavailable"
		return res
	}

	plan := WarmPlan(h.cube.Shape(), h.cube.SizeMB(), s.opts.Warm.FullLimitMB, s.opts.Warm.Radius)
	res.Planned = len(plan)
	log := s.logger.With("cube_id", h.id)
	log.Info("warming slices", "planned", res.Planned, "size_mb", h.cube.SizeMB())

	for _, t := range plan {
		if !s.waitForCapacity(ctx, h, &res) {
			res.Interrupted = true
			break
		}
		if _, err := s.slice(ctx, h, t.Axis, t.Index); err != nil {
			res.Failed++
			log.Warn("warm slice failed", "axis", t.Axis.String(), "index", t.Index, "error", err)
			continue
		}
		res.Warmed++
	}

	res.Elapsed = time.Since(start)
	log.Info("warming finished",
		"warmed", res.Warmed,
		"failed", res.Failed,
		"interrupted", res.Interrupted,
		"elapsed", res.Elapsed)
	return res
}

// waitForCapacity blocks while backpressure asks warming to pause. It
// returns false when ctx ends or h is no longer active.
func (s *Session) waitForCapacity(ctx context.Context, h *handle, res *WarmResult) bool {
	for {
		if ctx.Err() != nil || s.active.Load() != h || h.deleted.Load() {
			return false
		}
		s.bridge.Pressure()
		if !s.bridge.ShouldPauseWarming() {
			return true
		}
		t := time.Now()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(warmPollInterval):
		}
		res.Paused += time.Since(t)
	}
}

// StartWarm runs Warm in the background, cancelling any earlier run.
func (s *Session) StartWarm() {
	if s.closed.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.warmMu.Lock()
	if s.warmCancel != nil {
		s.warmCancel()
	}
	s.warmCancel = cancel
	s.warmWG.Add(1)
	s.warmMu.Unlock()

	go func() {
		defer s.warmWG.Done()
		defer cancel()
		s.Warm(ctx)
	}()
}

func (s *Session) stopWarm() {
	s.warmMu.Lock()
	defer s.warmMu.Unlock()
	if s.warmCancel != nil {
		s.warmCancel()
		s.warmCancel = nil
	}
}

// WaitWarm blocks until background warming has stopped.
func (s *Session) WaitWarm() {
	s.warmWG.Wait()
}

func sortNewestFirst(list []payload.Metadata) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].CubeID < list[j].CubeID
	})
}
