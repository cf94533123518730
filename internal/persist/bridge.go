package persist

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/xtxerr/seiscube/internal/config"
	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/objstore"
	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/slicecache"
	"github.com/xtxerr/seiscube/internal/storage/parquet"
)

const (
	contentJSON    = "application/json"
	contentParquet = "application/vnd.apache.parquet"
)

// Options configures a Bridge.
type Options struct {
	Workers      int
	QueueSize    int
	Timeout      time.Duration
	Parquet      parquet.Options
	Backpressure config.BackpressureConfig
}

// OptionsFromConfig builds bridge options from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	pq := parquet.DefaultOptions()
	pq.Compression = parquet.ParseCompressionType(cfg.Persist.Compression)
	return Options{
		Workers:      cfg.Persist.Workers,
		QueueSize:    cfg.Persist.QueueSize,
		Timeout:      cfg.Store.Timeout,
		Parquet:      pq,
		Backpressure: cfg.Persist.Backpressure,
	}
}

// Bridge moves payloads between the session and the durable store. Saves are
// fire-and-forget on a worker pool; loads are synchronous. Store failures
// never escalate: saves log them, loads report a miss.
type Bridge struct {
	store  objstore.Store
	pool   *Pool
	bp     *Controller
	opts   Options
	logger *slog.Logger
}

// Stats is a snapshot of the bridge state.
type Stats struct {
	Available    bool            `json:"available"`
	Pool         PoolSnapshot    `json:"pool"`
	Backpressure ControllerStats `json:"backpressure"`
}

// NewBridge creates a bridge over store and starts its workers. A nil store
// is treated as unavailable.
func NewBridge(store objstore.Store, opts Options) *Bridge {
	if store == nil {
		store = objstore.Unavailable{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	pool := NewPool(opts.Workers, opts.QueueSize)
	b := &Bridge{
		store:  store,
		pool:   pool,
		bp:     NewController(opts.Backpressure, pool),
		opts:   opts,
		logger: logging.Component("persist"),
	}
	b.bp.SetOnLevelChange(func(old, new Level) {
		b.logger.Warn("upload backpressure changed", "from", old.String(), "to", new.String())
	})

	// Only fails when already running.
	_ = pool.Start()
	return b
}

// Available reports whether the durable store can be used.
func (b *Bridge) Available() bool {
	return b.store.Available()
}

// Pressure re-evaluates and returns the backpressure level.
func (b *Bridge) Pressure() Level {
	return b.bp.Check()
}

// ShouldPauseWarming reports whether eager warming should wait for the
// upload queue to drain.
func (b *Bridge) ShouldPauseWarming() bool {
	return b.bp.ShouldPauseWarming()
}

// SaveMetadata schedules a metadata write. It reports whether the task was
// accepted.
func (b *Bridge) SaveMetadata(m *payload.Metadata) bool {
	if !b.Available() {
		return false
	}
	data, err := payload.EncodeMetadata(m)
	if err != nil {
		b.logger.Error("metadata not saved", "cube_id", m.CubeID, "error", err)
		return false
	}
	key := MetadataKey(m.CubeID)
	return b.submit(key, func(ctx context.Context) error {
		return b.store.Put(ctx, key, data, contentJSON)
	})
}

// SaveSlice schedules the JSON document and the raw Parquet array of a slice.
// Under critical backpressure the upload is shed.
func (b *Bridge) SaveSlice(key slicecache.Key, doc []byte, rows, cols int, data []float32) bool {
	if !b.Available() {
		return false
	}
	b.bp.Check()
	if b.bp.ShouldShedSlices() {
		b.bp.RecordShed()
		b.logger.Debug("slice upload shed", "cube_id", key.CubeID, "slice", key.String())
		return false
	}

	jsonKey := SliceJSONKey(key.CubeID, key.Axis, key.Index)
	rawKey := SliceRawKey(key.CubeID, key.Axis, key.Index)
	opts := b.opts.Parquet

	return b.submit(jsonKey, func(ctx context.Context) error {
		if err := b.store.Put(ctx, jsonKey, doc, contentJSON); err != nil {
			return err
		}
		raw, err := parquet.EncodeSlice(rows, cols, data, opts)
		if err != nil {
			return err
		}
		return b.store.Put(ctx, rawKey, raw, contentParquet)
	})
}

func (b *Bridge) submit(name string, fn func(ctx context.Context) error) bool {
	timeout := b.opts.Timeout
	err := b.pool.Submit(Task{
		Name: name,
		Run: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return fn(ctx)
		},
	})
	if err != nil {
		b.logger.Warn("upload not scheduled", "key", name, "error", err)
		return false
	}
	return true
}

// LoadSlice reads a slice's JSON document. ok is false on a miss or when the
// store fails.
func (b *Bridge) LoadSlice(ctx context.Context, key slicecache.Key) ([]byte, bool) {
	if !b.Available() {
		return nil, false
	}
	data, err := b.get(ctx, SliceJSONKey(key.CubeID, key.Axis, key.Index))
	if err != nil {
		return nil, false
	}
	return data, true
}

// LoadRawSlice reads a slice's raw array.
func (b *Bridge) LoadRawSlice(ctx context.Context, key slicecache.Key) (rows, cols int, data []float32, ok bool) {
	if !b.Available() {
		return 0, 0, nil, false
	}
	raw, err := b.get(ctx, SliceRawKey(key.CubeID, key.Axis, key.Index))
	if err != nil {
		return 0, 0, nil, false
	}
	rows, cols, data, err = parquet.DecodeSlice(raw)
	if err != nil {
		b.logger.Warn("stored slice array unreadable", "cube_id", key.CubeID, "slice", key.String(), "error", err)
		return 0, 0, nil, false
	}
	return rows, cols, data, true
}

// LoadMetadata reads one cube's metadata. The error matches
// errors.ErrNotFound or errors.ErrStoreUnavailable.
func (b *Bridge) LoadMetadata(ctx context.Context, cubeID string) (*payload.Metadata, error) {
	if !b.Available() {
		return nil, errors.ErrStoreUnavailable
	}
	data, err := b.get(ctx, MetadataKey(cubeID))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFound("cube", cubeID)
		}
		return nil, err
	}
	m, err := payload.DecodeMetadata(data)
	if err != nil {
		b.logger.Warn("stored metadata unreadable", "cube_id", cubeID, "error", err)
		return nil, errors.Wrap(errors.ErrStoreUnavailable, err.Error())
	}
	return m, nil
}

// ListMetadata returns every stored cube's metadata, newest first. Unreadable
// documents are skipped.
func (b *Bridge) ListMetadata(ctx context.Context) ([]payload.Metadata, error) {
	if !b.Available() {
		return nil, errors.ErrStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	keys, err := b.store.List(ctx, RootPrefix)
	if err != nil {
		b.logger.Warn("listing cubes failed", "error", err)
		return nil, err
	}

	var out []payload.Metadata
	for _, key := range keys {
		id, ok := CubeIDFromMetadataKey(key)
		if !ok {
			continue
		}
		data, err := b.store.Get(ctx, key)
		if err != nil {
			b.logger.Warn("metadata not readable", "cube_id", id, "error", err)
			continue
		}
		m, err := payload.DecodeMetadata(data)
		if err != nil {
			b.logger.Warn("metadata not decodable", "cube_id", id, "error", err)
			continue
		}
		out = append(out, *m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteCube removes every object of a cube and returns how many were
// removed.
func (b *Bridge) DeleteCube(ctx context.Context, cubeID string) (int, error) {
	if !b.Available() {
		return 0, errors.ErrStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	deleted, err := b.store.DeletePrefix(ctx, CubePrefix(cubeID))
	if err != nil {
		b.logger.Warn("cube delete incomplete", "cube_id", cubeID, "deleted", len(deleted), "error", err)
	}
	return len(deleted), err
}

// Drain waits for every scheduled upload.
func (b *Bridge) Drain(ctx context.Context) error {
	return b.pool.Drain(ctx)
}

// Close stops the workers after the queue empties, then closes the store.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.pool.Stop(ctx)
	if cerr := b.store.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// Stats returns a snapshot of the bridge state.
func (b *Bridge) Stats() Stats {
	return Stats{
		Available:    b.Available(),
		Pool:         b.pool.Stats(),
		Backpressure: b.bp.Stats(),
	}
}

func (b *Bridge) get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	data, err := b.store.Get(ctx, key)
	if err != nil && !errors.IsNotFound(err) {
		b.logger.Warn("store read failed", "key", key, "error", err)
	}
	return data, err
}
