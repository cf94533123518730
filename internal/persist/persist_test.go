package persist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xtxerr/seiscube/internal/config"
	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/objstore"
	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/slicecache"
	"github.com/xtxerr/seiscube/internal/testutil"
)

func memStore(t *testing.T) *objstore.Bucket {
	t.Helper()
	b, err := objstore.Open(context.Background(), "mem://", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return b
}

func testOptions() Options {
	cfg := config.DefaultConfig()
	return OptionsFromConfig(cfg)
}

func TestKeys(t *testing.T) {
	if got := MetadataKey("abc"); got != "cubes/abc/metadata.json" {
		t.Errorf("metadata key = %q", got)
	}
	if got := SliceJSONKey("abc", "xline", 7); got != "cubes/abc/slices/xline_7.json" {
		t.Errorf("slice key = %q", got)
	}
	if got := SliceRawKey("abc", "sample", 0); got != "cubes/abc/slices/sample_0.parquet" {
		t.Errorf("raw key = %q", got)
	}

	tests := []struct {
		key string
		id  string
		ok  bool
	}{
		{"cubes/abc/metadata.json", "abc", true},
		{"cubes/abc/slices/inline_0.json", "", false},
		{"other/abc/metadata.json", "", false},
		{"cubes//metadata.json", "", false},
	}
	for _, tt := range tests {
		id, ok := CubeIDFromMetadataKey(tt.key)
		if id != tt.id || ok != tt.ok {
			t.Errorf("CubeIDFromMetadataKey(%q) = %q, %v", tt.key, id, ok)
		}
	}
}

func TestPool_RunsAndDrains(t *testing.T) {
	p := NewPool(4, 64)
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop(context.Background())

	var done atomic.Int32
	for i := 0; i < 50; i++ {
		err := p.Submit(Task{Name: fmt.Sprint(i), Run: func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		}})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := done.Load(); got != 50 {
		t.Errorf("completed %d tasks, want 50", got)
	}
	if st := p.Stats(); st.Completed != 50 || st.Pending != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(1, 2)
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	release := make(chan struct{})
	block := Task{Name: "block", Run: func(ctx context.Context) error {
		<-release
		return nil
	}}

	// One running, two queued.
	if err := p.Submit(block); err != nil {
		t.Fatalf("submit: %v", err)
	}
	testutil.Eventually(t, time.Second, func() bool { return p.Stats().Queued == 0 }, "worker picks up first task")
	for i := 0; i < 2; i++ {
		if err := p.Submit(block); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	if err := p.Submit(block); !errors.Is(err, errors.ErrQueueFull) {
		t.Errorf("expected queue full, got %v", err)
	}
	if got := p.Stats().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	close(release)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := p.Submit(block); !errors.Is(err, errors.ErrPoolClosed) {
		t.Errorf("expected pool closed, got %v", err)
	}
}

func TestPool_FailuresAndPanicsAreContained(t *testing.T) {
	p := NewPool(2, 8)
	p.logger = logging.Discard()
	_ = p.Start()
	defer p.Stop(context.Background())

	_ = p.Submit(Task{Name: "fail", Run: func(context.Context) error { return fmt.Errorf("boom") }})
	_ = p.Submit(Task{Name: "panic", Run: func(context.Context) error { panic("bad") }})
	_ = p.Submit(Task{Name: "ok", Run: func(context.Context) error { return nil }})

	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	st := p.Stats()
	if st.Failed != 2 || st.Completed != 1 {
		t.Errorf("failed/completed = %d/%d, want 2/1", st.Failed, st.Completed)
	}
}

func TestPool_StopTimeoutCancelsTasks(t *testing.T) {
	p := NewPool(1, 4)
	_ = p.Start()

	started := make(chan struct{})
	_ = p.Submit(Task{Name: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

type fixedUsage struct {
	mu sync.Mutex
	v  float64
}

func (f *fixedUsage) set(v float64) {
	f.mu.Lock()
	f.v = v
	f.mu.Unlock()
}

func (f *fixedUsage) UsageRatio() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func TestController_Levels(t *testing.T) {
	usage := &fixedUsage{}
	cfg := config.BackpressureConfig{Enabled: true, Hysteresis: 0.1}
	cfg.Thresholds.Warning = 0.5
	cfg.Thresholds.Critical = 0.9
	c := NewController(cfg, usage)

	steps := []struct {
		usage float64
		want  Level
	}{
		{0.1, LevelNormal},
		{0.5, LevelWarning},
		{0.95, LevelCritical},
		{0.85, LevelCritical}, // within hysteresis
		{0.75, LevelWarning},
		{0.45, LevelWarning}, // within hysteresis
		{0.3, LevelNormal},
	}
	for i, s := range steps {
		usage.set(s.usage)
		if got := c.Check(); got != s.want {
			t.Errorf("step %d (usage %.2f): level %s, want %s", i, s.usage, got, s.want)
		}
	}

	if st := c.Stats(); st.CriticalCount != 1 || st.WarningCount != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestController_PausesAndSheds(t *testing.T) {
	usage := &fixedUsage{}
	cfg := config.BackpressureConfig{Enabled: true}
	cfg.Thresholds.Warning = 0.5
	cfg.Thresholds.Critical = 0.9
	c := NewController(cfg, usage)

	usage.set(0.6)
	c.Check()
	if !c.ShouldPauseWarming() || c.ShouldShedSlices() {
		t.Error("warning should pause warming only")
	}

	usage.set(0.95)
	c.Check()
	if !c.ShouldShedSlices() {
		t.Error("critical should shed slices")
	}

	cfg.Enabled = false
	off := NewController(cfg, usage)
	if off.Check() != LevelNormal {
		t.Error("disabled controller should stay normal")
	}
}

func TestBridge_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	b := NewBridge(store, testOptions())
	defer b.Close(ctx)

	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	meta := &payload.Metadata{Filename: "a.sgy", CubeID: "c1", CreatedAt: created, UpdatedAt: created}
	if !b.SaveMetadata(meta) {
		t.Fatal("metadata upload not accepted")
	}

	key := slicecache.Key{CubeID: "c1", Axis: "inline", Index: 3}
	doc := []byte(`{"data":[[1,2]]}`)
	if !b.SaveSlice(key, doc, 1, 2, []float32{1, 2}) {
		t.Fatal("slice upload not accepted")
	}

	if err := b.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	got, ok := b.LoadSlice(ctx, key)
	if !ok || string(got) != string(doc) {
		t.Errorf("LoadSlice = %q, %v", got, ok)
	}

	rows, cols, data, ok := b.LoadRawSlice(ctx, key)
	if !ok || rows != 1 || cols != 2 {
		t.Fatalf("LoadRawSlice = %d x %d, %v", rows, cols, ok)
	}
	if diff := cmp.Diff([]float32{1, 2}, data); diff != "" {
		t.Errorf("raw data (-want +got):\n%s", diff)
	}

	m, err := b.LoadMetadata(ctx, "c1")
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if diff := cmp.Diff(meta, m); diff != "" {
		t.Errorf("metadata (-want +got):\n%s", diff)
	}

	if _, ok := b.LoadSlice(ctx, slicecache.Key{CubeID: "c1", Axis: "inline", Index: 99}); ok {
		t.Error("missing slice should be a miss")
	}
	if _, err := b.LoadMetadata(ctx, "nope"); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestBridge_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(memStore(t), testOptions())
	defer b.Close(ctx)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		b.SaveMetadata(&payload.Metadata{CubeID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	b.SaveSlice(slicecache.Key{CubeID: "mid", Axis: "sample", Index: 0}, []byte("{}"), 1, 1, []float32{0})
	if err := b.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	list, err := b.ListMetadata(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, m := range list {
		ids = append(ids, m.CubeID)
	}
	if diff := cmp.Diff([]string{"new", "mid", "old"}, ids); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}

	n, err := b.DeleteCube(ctx, "mid")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d objects, want 3", n)
	}
	if n, _ := b.DeleteCube(ctx, "mid"); n != 0 {
		t.Errorf("second delete removed %d objects", n)
	}
}

func TestBridge_Unavailable(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(nil, testOptions())
	defer b.Close(ctx)

	if b.Available() {
		t.Error("nil store should be unavailable")
	}
	if b.SaveMetadata(&payload.Metadata{CubeID: "x"}) {
		t.Error("save should be refused without a store")
	}
	if b.SaveSlice(slicecache.Key{CubeID: "x"}, nil, 0, 0, nil) {
		t.Error("save should be refused without a store")
	}
	if _, ok := b.LoadSlice(ctx, slicecache.Key{CubeID: "x"}); ok {
		t.Error("load should miss without a store")
	}
	if _, err := b.ListMetadata(ctx); !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestBridge_ShedsUnderCriticalPressure(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.Workers = 1
	opts.QueueSize = 2
	opts.Backpressure.Thresholds.Warning = 0.5
	opts.Backpressure.Thresholds.Critical = 1.0

	b := NewBridge(memStore(t), opts)
	defer b.Close(ctx)

	release := make(chan struct{})
	started := make(chan struct{})
	// Occupy the worker, then fill the queue.
	_ = b.pool.Submit(Task{Name: "block", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started
	for i := 0; i < 2; i++ {
		_ = b.pool.Submit(Task{Name: "fill", Run: func(context.Context) error { <-release; return nil }})
	}

	if b.SaveSlice(slicecache.Key{CubeID: "c", Axis: "inline"}, []byte("{}"), 1, 1, []float32{0}) {
		t.Error("slice upload should be shed at critical pressure")
	}
	if b.Pressure() != LevelCritical {
		t.Errorf("pressure = %s, want critical", b.Pressure())
	}
	if got := b.Stats().Backpressure.SlicesShed; got != 1 {
		t.Errorf("slices shed = %d, want 1", got)
	}

	close(release)
}
