package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/seiscube/config"
)

// Config represents the complete service configuration.
type Config struct {
	// Server configures the HTTP listener and upload limits.
	Server ServerConfig `yaml:"server"`

	// Cache configures the slice cache.
	Cache CacheConfig `yaml:"cache"`

	// Store configures the durable object store.
	Store StoreConfig `yaml:"store"`

	// Persist configures the background upload pool.
	Persist PersistConfig `yaml:"persist"`

	// Stats configures amplitude statistics.
	Stats StatsConfig `yaml:"stats"`

	// Geometry configures survey orientation estimation.
	Geometry GeometryConfig `yaml:"geometry"`

	// Catalog configures the local cube catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Listen is the listen address, e.g. "0.0.0.0:8000".
	Listen string `yaml:"listen"`

	// MaxUploadMB limits the request body of an upload.
	MaxUploadMB int `yaml:"max_upload_mb"`

	// AllowedOrigins lists CORS origins. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CacheConfig configures the slice cache.
type CacheConfig struct {
	// MaxEntries is the cache capacity in slices.
	MaxEntries int `yaml:"max_entries"`
}

// StoreConfig configures the durable object store.
type StoreConfig struct {
	// URL is a gocloud bucket URL: azblob://container, s3://bucket,
	// gs://bucket, file:///path or mem://. Empty disables persistence.
	URL string `yaml:"url"`

	// Prefix is prepended to every key.
	Prefix string `yaml:"prefix"`

	// Timeout bounds a single store call.
	Timeout time.Duration `yaml:"timeout"`
}

// PersistConfig configures the background upload pool.
type PersistConfig struct {
	// Workers is the number of upload workers.
	Workers int `yaml:"workers"`

	// QueueSize is the upload queue capacity.
	QueueSize int `yaml:"queue_size"`

	// Compression is the Parquet codec for raw slice arrays: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// Warm configures eager slice caching after a load.
	Warm WarmConfig `yaml:"warm"`

	// Backpressure configures load shedding on the upload queue.
	Backpressure BackpressureConfig `yaml:"backpressure"`
}

// WarmConfig configures eager slice caching.
type WarmConfig struct {
	// Enabled turns eager caching on.
	Enabled bool `yaml:"enabled"`

	// FullLimitMB is the cube size up to which every slice is warmed.
	FullLimitMB float64 `yaml:"full_limit_mb"`

	// Radius is the number of slices either side of center warmed for larger cubes.
	Radius int `yaml:"radius"`
}

// BackpressureConfig configures load shedding.
type BackpressureConfig struct {
	// Enabled enables backpressure handling.
	Enabled bool `yaml:"enabled"`

	// Thresholds defines queue usage thresholds for level changes.
	Thresholds BackpressureThresholds `yaml:"thresholds"`

	// Hysteresis prevents flapping between levels (0.0-1.0).
	Hysteresis float64 `yaml:"hysteresis"`
}

// BackpressureThresholds defines queue usage thresholds.
type BackpressureThresholds struct {
	// Warning threshold (0.0-1.0). Eager warming pauses.
	Warning float64 `yaml:"warning"`

	// Critical threshold (0.0-1.0). Slice uploads are shed.
	Critical float64 `yaml:"critical"`
}

// StatsConfig configures amplitude statistics.
type StatsConfig struct {
	// Percentiles selects the percentile method: auto, exact or sketch.
	Percentiles string `yaml:"percentiles"`

	// SketchAccuracy is the DDSketch relative accuracy.
	SketchAccuracy float64 `yaml:"sketch_accuracy"`

	// ExactLimit is the value count above which auto switches to the sketch.
	ExactLimit int `yaml:"exact_limit"`
}

// GeometryConfig configures orientation estimation.
type GeometryConfig struct {
	// SampleLimit is how many leading traces are examined.
	SampleLimit int `yaml:"sample_limit"`

	// MinRecords is the minimum number of usable position records.
	MinRecords int `yaml:"min_records"`

	// PerpendicularTolerance is the largest accepted |dot| between axes.
	PerpendicularTolerance float64 `yaml:"perpendicular_tolerance"`
}

// CatalogConfig configures the local DuckDB catalog.
type CatalogConfig struct {
	// Enabled turns the catalog on.
	Enabled bool `yaml:"enabled"`

	// Path is the database file. Empty keeps the catalog in memory.
	Path string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          defaults.DefaultListenAddress,
			MaxUploadMB:     defaults.DefaultMaxUploadMB,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: defaults.DefaultShutdownTimeout,
		},
		Cache: CacheConfig{
			MaxEntries: defaults.DefaultMaxCacheEntries,
		},
		Store: StoreConfig{
			Timeout: defaults.DefaultStoreTimeout,
		},
		Persist: PersistConfig{
			Workers:     defaults.DefaultPersistWorkers,
			QueueSize:   defaults.DefaultPersistQueueSize,
			Compression: "zstd",
			Warm: WarmConfig{
				Enabled:     true,
				FullLimitMB: defaults.DefaultWarmFullLimitMB,
				Radius:      defaults.DefaultWarmRadius,
			},
			Backpressure: BackpressureConfig{
				Enabled: true,
				Thresholds: BackpressureThresholds{
					Warning:  0.50,
					Critical: 0.90,
				},
				Hysteresis: 0.10,
			},
		},
		Stats: StatsConfig{
			Percentiles:    "auto",
			SketchAccuracy: defaults.DefaultSketchAccuracy,
			ExactLimit:     defaults.DefaultExactLimit,
		},
		Geometry: GeometryConfig{
			SampleLimit:            defaults.DefaultGeometrySampleLimit,
			MinRecords:             defaults.DefaultGeometryMinRecords,
			PerpendicularTolerance: defaults.DefaultPerpendicularTolerance,
		},
		Catalog: CatalogConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
