// Package config provides configuration defaults for the seiscube service.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8000"

	// DefaultMaxUploadMB limits the size of an uploaded survey file.
	// Override via config: server.max_upload_mb
	DefaultMaxUploadMB = 500

	// DefaultShutdownTimeout bounds graceful shutdown including the
	// persistence queue drain.
	// Override via config: server.shutdown_timeout
	DefaultShutdownTimeout = 30 * time.Second
)

// =============================================================================
// Cache Defaults
// =============================================================================

const (
	// DefaultMaxCacheEntries is the slice cache capacity.
	// Each entry holds one slice in decoded, JSON and gzip form.
	// Override via config: cache.max_entries or MAX_SLICE_CACHE
	DefaultMaxCacheEntries = 200
)

// =============================================================================
// Persistence Defaults
// =============================================================================

const (
	// DefaultPersistWorkers is the number of background upload workers.
	// Override via config: persist.workers
	DefaultPersistWorkers = 4

	// DefaultPersistQueueSize is the upload queue capacity.
	// When full, new uploads are dropped and counted.
	// Override via config: persist.queue_size
	DefaultPersistQueueSize = 1024

	// DefaultStoreTimeout bounds a single object store call.
	// Override via config: store.timeout
	DefaultStoreTimeout = 30 * time.Second

	// DefaultWarmFullLimitMB is the cube size up to which every slice is
	// cached eagerly after a load. Larger cubes warm only the center slices.
	// Override via config: persist.warm.full_limit_mb
	DefaultWarmFullLimitMB = 200

	// DefaultWarmRadius is the number of slices either side of the center
	// warmed for large cubes.
	// Override via config: persist.warm.radius
	DefaultWarmRadius = 2
)

// =============================================================================
// Statistics Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the DDSketch relative accuracy (0.01 = 1% error).
	// Override via config: stats.sketch_accuracy
	DefaultSketchAccuracy = 0.01

	// DefaultExactLimit is the value count above which percentiles switch
	// from an exact sort to DDSketch in "auto" mode.
	// Override via config: stats.exact_limit
	DefaultExactLimit = 16 * 1024 * 1024
)

// =============================================================================
// Geometry Defaults
// =============================================================================

const (
	// DefaultGeometrySampleLimit is how many leading traces feed the
	// geometry estimate.
	// Override via config: geometry.sample_limit
	DefaultGeometrySampleLimit = 1000

	// DefaultGeometryMinRecords is the minimum number of usable position
	// records before falling back to the assumed grid.
	// Override via config: geometry.min_records
	DefaultGeometryMinRecords = 10

	// DefaultPerpendicularTolerance is the largest |dot| accepted between the
	// inline and crossline unit vectors.
	// Override via config: geometry.perpendicular_tolerance
	DefaultPerpendicularTolerance = 0.1
)
