package config

import (
	"errors"
	"fmt"

	serrors "github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, errors.New("cache: max_entries must be positive"))
	}

	if c.Store.Timeout < 0 {
		errs = append(errs, errors.New("store: timeout must not be negative"))
	}

	if err := c.Persist.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("persist: %w", err))
	}

	if err := c.Stats.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stats: %w", err))
	}

	if err := c.Geometry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("geometry: %w", err))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", serrors.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}

	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max_upload_mb must be positive"))
	}

	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the persist configuration.
func (c *PersistConfig) Validate() error {
	var errs []error

	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}

	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("queue_size must be positive"))
	}

	validCompression := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true,
	}
	if !validCompression[c.Compression] {
		errs = append(errs, errors.New("compression must be one of: snappy, zstd, lz4, gzip, none"))
	}

	if c.Warm.FullLimitMB < 0 {
		errs = append(errs, errors.New("warm.full_limit_mb must not be negative"))
	}
	if c.Warm.Radius < 0 {
		errs = append(errs, errors.New("warm.radius must not be negative"))
	}

	if err := c.Backpressure.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backpressure: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the backpressure configuration.
func (c *BackpressureConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	t := c.Thresholds

	if t.Warning <= 0 || t.Warning > 1 {
		errs = append(errs, errors.New("thresholds.warning must be between 0 and 1"))
	}
	if t.Critical <= 0 || t.Critical > 1 {
		errs = append(errs, errors.New("thresholds.critical must be between 0 and 1"))
	}
	if t.Warning >= t.Critical {
		errs = append(errs, errors.New("thresholds.warning must be below thresholds.critical"))
	}
	if c.Hysteresis < 0 || c.Hysteresis >= 1 {
		errs = append(errs, errors.New("hysteresis must be in [0, 1)"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the statistics configuration.
func (c *StatsConfig) Validate() error {
	var errs []error

	switch c.Percentiles {
	case "", "auto", "exact", "sketch":
	default:
		errs = append(errs, fmt.Errorf("percentiles must be auto, exact or sketch, got %q", c.Percentiles))
	}

	if c.SketchAccuracy <= 0 || c.SketchAccuracy >= 1 {
		errs = append(errs, errors.New("sketch_accuracy must be between 0 and 1"))
	}

	if c.ExactLimit < 0 {
		errs = append(errs, errors.New("exact_limit must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the geometry configuration.
func (c *GeometryConfig) Validate() error {
	var errs []error

	if c.SampleLimit <= 0 {
		errs = append(errs, errors.New("sample_limit must be positive"))
	}
	if c.MinRecords <= 0 {
		errs = append(errs, errors.New("min_records must be positive"))
	}
	if c.PerpendicularTolerance < 0 || c.PerpendicularTolerance >= 1 {
		errs = append(errs, errors.New("perpendicular_tolerance must be in [0, 1)"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
