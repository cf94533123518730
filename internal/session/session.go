// Package session owns the active cube and everything derived from it: the
// slice cache, the persistence bridge and the local catalog.
//
// The active cube is an immutable, versioned handle behind an atomic pointer.
// A request works entirely against the handle it started with; a reload swaps
// the pointer and then purges the replaced cube's cache entries.
package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	defaults "github.com/xtxerr/seiscube/config"
	"github.com/xtxerr/seiscube/internal/catalog"
	"github.com/xtxerr/seiscube/internal/config"
	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/persist"
	"github.com/xtxerr/seiscube/internal/segy"
	"github.com/xtxerr/seiscube/internal/slicecache"
	"github.com/xtxerr/seiscube/internal/stats"
	"github.com/xtxerr/seiscube/internal/survey"
	"github.com/xtxerr/seiscube/internal/validation"
	"github.com/xtxerr/seiscube/internal/volume"
)

// Options configures a Session.
type Options struct {
	// CacheSize is the slice cache capacity.
	CacheSize int

	// Warm configures eager slice caching after a load.
	Warm config.WarmConfig

	// Builder builds cubes. Nil means volume.NewBuilder().
	Builder *volume.Builder

	// Bridge persists payloads. Nil means a bridge with no store.
	Bridge *persist.Bridge

	// Catalog records loaded cubes. Optional.
	Catalog *catalog.Catalog

	// NewID returns a fresh cube id. Nil means time-ordered UUIDs.
	NewID func() string

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// BuilderFromConfig creates a cube builder with the configured statistics
// and geometry settings.
func BuilderFromConfig(cfg *config.Config) (*volume.Builder, error) {
	method, err := stats.ParseMethod(cfg.Stats.Percentiles)
	if err != nil {
		return nil, err
	}

	b := volume.NewBuilder()
	b.Stats = stats.Engine{
		Method:     method,
		Accuracy:   cfg.Stats.SketchAccuracy,
		ExactLimit: cfg.Stats.ExactLimit,
	}
	b.Estimator.SampleLimit = cfg.Geometry.SampleLimit
	b.Estimator.MinRecords = cfg.Geometry.MinRecords
	b.Estimator.PerpendicularTolerance = cfg.Geometry.PerpendicularTolerance
	return b, nil
}

// handle is one loaded cube. It is never modified after publication.
type handle struct {
	id       string
	version  uint64
	filename string
	cube     *volume.Cube
	info     payload.CubeInfo
	meta     payload.Metadata
	report   *volume.BuildReport

	// deleted is set once the cube's stored objects are removed while it is
	// still active. Its slices are then served but never stored again.
	deleted atomic.Bool
}

// Session is safe for concurrent use.
type Session struct {
	opts    Options
	builder *volume.Builder
	cache   *slicecache.Cache
	bridge  *persist.Bridge
	catalog *catalog.Catalog
	logger  *slog.Logger

	active  atomic.Pointer[handle]
	version atomic.Uint64

	// loadMu serializes loads.
	loadMu sync.Mutex

	// group collapses concurrent misses on one slice.
	group singleflight.Group

	warmMu     sync.Mutex
	warmCancel context.CancelFunc
	warmWG     sync.WaitGroup

	closed atomic.Bool
}

// New creates a session.
func New(opts Options) *Session {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaults.DefaultMaxCacheEntries
	}
	if opts.Builder == nil {
		opts.Builder = volume.NewBuilder()
	}
	if opts.Bridge == nil {
		opts.Bridge = persist.NewBridge(nil, persist.Options{})
	}
	if opts.NewID == nil {
		opts.NewID = newCubeID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("session")
	}

	return &Session{
		opts:    opts,
		builder: opts.Builder,
		cache:   slicecache.New(opts.CacheSize),
		bridge:  opts.Bridge,
		catalog: opts.Catalog,
		logger:  opts.Logger,
	}
}

func newCubeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ============================================================================
// Loading
// ============================================================================

// LoadResult describes a completed load.
type LoadResult struct {
	CubeID    string
	Filename  string
	Info      payload.CubeInfo
	Report    *volume.BuildReport
	Persisted bool

	// Replaced is the id of the cube this load replaced, if any.
	Replaced string
}

// Load builds a cube from src and makes it the active cube. On error the
// previous cube stays active.
func (s *Session) Load(ctx context.Context, filename string, src survey.TraceSource) (*LoadResult, error) {
	if s.closed.Load() {
		return nil, errors.Wrap(errors.ErrInternal, "session closed")
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cube, report, err := s.builder.Build(src)
	if err != nil {
		s.logger.Warn("load failed, keeping previous cube", "file", filename, "error", err)
		return nil, err
	}

	now := s.opts.Now().UTC()
	id := s.opts.NewID()
	info := payload.NewCubeInfo(cube)
	h := &handle{
		id:       id,
		version:  s.version.Add(1),
		filename: filename,
		cube:     cube,
		info:     info,
		report:   report,
		meta: payload.Metadata{
			Filename:  filename,
			CubeID:    id,
			CubeInfo:  info,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	s.stopWarm()
	old := s.active.Swap(h)

	res := &LoadResult{CubeID: id, Filename: filename, Info: info, Report: report}
	if old != nil {
		res.Replaced = old.id
		n := s.cache.PurgeCube(old.id)
		s.logger.Info("replaced cube", "old_cube_id", old.id, "purged_slices", n)
	}

	if s.catalog != nil {
		if err := s.catalog.Upsert(ctx, &h.meta); err != nil {
			s.logger.Warn("catalog update failed", "cube_id", id, "error", err)
		}
	}
	res.Persisted = s.bridge.SaveMetadata(&h.meta)

	logging.WithContext(logging.ContextWithCubeID(ctx, id)).Info("cube loaded",
		"file", filename,
		"version", h.version,
		"shape", info.Shape,
		"persisted", res.Persisted)
	return res, nil
}

// LoadFile loads a SEG-Y file from disk.
func (s *Session) LoadFile(ctx context.Context, path string) (*LoadResult, error) {
	f, err := segy.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Load(ctx, filepath.Base(path), f)
}

// LoadBytes loads a SEG-Y file held in memory.
func (s *Session) LoadBytes(ctx context.Context, filename string, data []byte) (*LoadResult, error) {
	return s.LoadReader(ctx, filename, bytes.NewReader(data), int64(len(data)))
}

// LoadReader loads a SEG-Y file from a random-access reader.
func (s *Session) LoadReader(ctx context.Context, filename string, r io.ReaderAt, size int64) (*LoadResult, error) {
	f, err := segy.Open(r, size)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, filename, f)
}

// ============================================================================
// Accessors
// ============================================================================

// CubeID returns the active cube's id, or "" when none is loaded.
func (s *Session) CubeID() string {
	if h := s.active.Load(); h != nil {
		return h.id
	}
	return ""
}

// CubeInfo returns the active cube's summary.
func (s *Session) CubeInfo() (payload.CubeInfo, bool) {
	h := s.active.Load()
	if h == nil {
		return payload.CubeInfo{}, false
	}
	return h.info, true
}

// Cube returns the active cube, or nil.
func (s *Session) Cube() *volume.Cube {
	if h := s.active.Load(); h != nil {
		return h.cube
	}
	return nil
}

// Report returns the build report of the active cube, or nil.
func (s *Session) Report() *volume.BuildReport {
	if h := s.active.Load(); h != nil {
		return h.report
	}
	return nil
}

// Cache returns the slice cache.
func (s *Session) Cache() *slicecache.Cache { return s.cache }

// ============================================================================
// Slices
// ============================================================================

// GetSlice returns the encoded slice along axis at index. Lookup order is the
// in-memory cache, the stored JSON document, the stored raw array and finally
// extraction from the cube. Freshly extracted slices are uploaded in the
// background.
func (s *Session) GetSlice(ctx context.Context, axis volume.Axis, index int) (*slicecache.Entry, error) {
	h := s.active.Load()
	if h == nil {
		return nil, errors.ErrNoCube
	}
	return s.slice(ctx, h, axis, index)
}

func (s *Session) slice(ctx context.Context, h *handle, axis volume.Axis, index int) (*slicecache.Entry, error) {
	if axis < volume.AxisInline || axis > volume.AxisSample {
		return nil, errors.NewInvalidAxis(axis.String())
	}
	if err := h.cube.CheckIndex(axis, index); err != nil {
		return nil, err
	}

	key := slicecache.Key{CubeID: h.id, Axis: axis.String(), Index: index}
	if e, ok := s.cache.Get(key); ok {
		return e, nil
	}

	v, err, _ := s.group.Do(h.id+"/"+key.String(), func() (any, error) {
		return s.fillSlice(ctx, h, key, axis, index)
	})
	if err != nil {
		return nil, err
	}
	return v.(*slicecache.Entry), nil
}

// Source reports where fillSlice found a slice.
type Source string

const (
	SourceCache   Source = "cache"
	SourceStored  Source = "stored"
	SourceRaw     Source = "raw"
	SourceCompute Source = "compute"
)

func (s *Session) fillSlice(ctx context.Context, h *handle, key slicecache.Key, axis volume.Axis, index int) (*slicecache.Entry, error) {
	// A concurrent flight for the same key may have finished first.
	if e, ok := s.cache.Get(key); ok {
		return e, nil
	}

	log := s.logger.With("cube_id", h.id, "slice", key.String())

	// Nothing of a deleted cube is read from or written to the store.
	if !h.deleted.Load() {
		e, src, err := s.readStored(ctx, h, key, axis, index, log)
		if err != nil {
			return nil, err
		}
		if e != nil {
			s.publish(h, key, e)
			log.Debug("slice read through", "source", src)
			return e, nil
		}
	}

	sl, err := h.cube.Slice(axis, index)
	if err != nil {
		return nil, err
	}
	e, err := encode(sl)
	if err != nil {
		return nil, err
	}
	s.publish(h, key, e)
	if !h.deleted.Load() {
		s.bridge.SaveSlice(key, e.JSON, sl.Rows, sl.Cols, sl.Data)
	}
	log.Debug("slice computed", "source", SourceCompute)
	return e, nil
}

// readStored looks for the slice in the durable store, first as a JSON
// document and then as a raw array. It returns a nil entry when neither is
// usable.
func (s *Session) readStored(ctx context.Context, h *handle, key slicecache.Key, axis volume.Axis, index int, log *slog.Logger) (*slicecache.Entry, Source, error) {
	if raw, ok := s.bridge.LoadSlice(ctx, key); ok {
		e, err := decodeStored(raw)
		if err == nil {
			return e, SourceStored, nil
		}
		log.Warn("stored slice unusable, recomputing", "error", err)
	}

	if rows, cols, data, ok := s.bridge.LoadRawSlice(ctx, key); ok {
		sl, err := h.cube.SliceFromData(axis, index, rows, cols, data)
		if err == nil {
			e, err := encode(sl)
			if err != nil {
				return nil, "", err
			}
			return e, SourceRaw, nil
		}
		log.Warn("stored slice array unusable, recomputing", "error", err)
	}
	return nil, "", nil
}

// publish caches e unless h has been replaced in the meantime.
func (s *Session) publish(h *handle, key slicecache.Key, e *slicecache.Entry) {
	s.cache.Set(key, e)
	if s.active.Load() != h {
		s.cache.Remove(key)
	}
}

func decodeStored(raw []byte) (*slicecache.Entry, error) {
	doc, err := payload.DecodeSlice(raw)
	if err != nil {
		return nil, err
	}
	gz, err := payload.Gzip(raw)
	if err != nil {
		return nil, err
	}
	return &slicecache.Entry{JSON: raw, Gzip: gz, Doc: doc}, nil
}

func encode(sl *volume.Slice) (*slicecache.Entry, error) {
	doc := payload.NewSliceDoc(sl)
	raw, gz, err := payload.EncodeSlice(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}
	return &slicecache.Entry{JSON: raw, Gzip: gz, Doc: doc}, nil
}

// ============================================================================
// Cubes
// ============================================================================

// DeleteResult describes a cube deletion.
type DeleteResult struct {
	CubeID         string `json:"cube_id"`
	DeletedObjects int    `json:"deleted_objects_count"`
	CacheEntries   int    `json:"cache_entries"`
	Catalog        bool   `json:"catalog"`
}

// Delete removes a cube's stored objects, catalog row and cached slices. It
// returns a not-found error when none existed. The active cube stays loaded
// for slicing, but is marked deleted: it is no longer listed or returned by
// GetCube, and its slices are no longer stored.
func (s *Session) Delete(ctx context.Context, id string) (DeleteResult, error) {
	res := DeleteResult{CubeID: id}
	if err := validation.ValidateCubeID(id); err != nil {
		return res, errors.NewValidation("cube_id", err.Error())
	}

	if h := s.active.Load(); h != nil && h.id == id && !h.deleted.Swap(true) && s.bridge.Available() {
		// Uploads queued before the mark would land after the delete.
		if err := s.bridge.Drain(ctx); err != nil {
			s.logger.Warn("drain before delete", "cube_id", id, "error", err)
		}
	}

	var storeErr error
	if s.bridge.Available() {
		res.DeletedObjects, storeErr = s.bridge.DeleteCube(ctx, id)
	}
	if s.catalog != nil {
		ok, err := s.catalog.Delete(ctx, id)
		if err != nil {
			s.logger.Warn("catalog delete failed", "cube_id", id, "error", err)
		}
		res.Catalog = ok
	}
	res.CacheEntries = s.cache.PurgeCube(id)

	if res.DeletedObjects == 0 && !res.Catalog {
		if storeErr != nil {
			return res, storeErr
		}
		return res, errors.NewNotFound("cube", id)
	}

	s.logger.Info("cube deleted",
		"cube_id", id,
		"objects", res.DeletedObjects,
		"cache_entries", res.CacheEntries,
		"catalog", res.Catalog)
	return res, nil
}

// ListCubes returns every known cube, newest first, merging the durable store
// with the local catalog. The store's record wins when both have one.
func (s *Session) ListCubes(ctx context.Context) ([]payload.Metadata, error) {
	byID := make(map[string]payload.Metadata)
	var order []string
	add := func(list []payload.Metadata) {
		for _, m := range list {
			if _, ok := byID[m.CubeID]; !ok {
				order = append(order, m.CubeID)
			}
			byID[m.CubeID] = m
		}
	}

	var errs []error
	if s.catalog != nil {
		list, err := s.catalog.List(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		add(list)
	}
	if s.bridge.Available() {
		list, err := s.bridge.ListMetadata(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		add(list)
	}

	if len(byID) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out := make([]payload.Metadata, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sortNewestFirst(out)
	return out, nil
}

// GetCube returns one cube's metadata from the active cube, the durable
// store or the catalog.
func (s *Session) GetCube(ctx context.Context, id string) (*payload.Metadata, error) {
	if err := validation.ValidateCubeID(id); err != nil {
		return nil, errors.NewValidation("cube_id", err.Error())
	}
	if h := s.active.Load(); h != nil && h.id == id && !h.deleted.Load() {
		m := h.meta
		return &m, nil
	}

	var storeErr error
	if s.bridge.Available() {
		m, err := s.bridge.LoadMetadata(ctx, id)
		if err == nil {
			return m, nil
		}
		if !errors.IsNotFound(err) {
			storeErr = err
		}
	}
	if s.catalog != nil {
		m, err := s.catalog.Get(ctx, id)
		if err == nil {
			return m, nil
		}
	}
	if storeErr != nil {
		return nil, storeErr
	}
	return nil, errors.NewNotFound("cube", id)
}

// ============================================================================
// Health and lifecycle
// ============================================================================

// Health is the service status.
type Health struct {
	Status     string           `json:"status"`
	DataLoaded bool             `json:"data_loaded"`
	CubeID     string           `json:"cube_id,omitempty"`
	Version    uint64           `json:"version,omitempty"`
	Store      string           `json:"store_status"`
	Catalog    bool             `json:"catalog"`
	Cache      slicecache.Stats `json:"cache"`
	Persist    persist.Stats    `json:"persist"`
}

// Health reports the session state.
func (s *Session) Health() Health {
	h := Health{
		Status:  "healthy",
		Store:   "disconnected",
		Catalog: s.catalog != nil,
		Cache:   s.cache.Stats(),
		Persist: s.bridge.Stats(),
	}
	if s.bridge.Available() {
		h.Store = "connected"
	}
	if a := s.active.Load(); a != nil {
		h.DataLoaded = true
		h.CubeID = a.id
		h.Version = a.version
	}
	return h
}

// Drain waits for every scheduled upload.
func (s *Session) Drain(ctx context.Context) error {
	return s.bridge.Drain(ctx)
}

// Close stops warming, waits for uploads and closes the store and catalog.
func (s *Session) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stopWarm()
	s.warmWG.Wait()

	err := s.bridge.Close(ctx)
	if s.catalog != nil {
		if cerr := s.catalog.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
