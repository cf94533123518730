package persist

import (
	"sync"
	"sync/atomic"

	"github.com/xtxerr/seiscube/internal/config"
)

// Level represents the current backpressure level.
type Level int

const (
	// LevelNormal - uploads keep up.
	LevelNormal Level = iota

	// LevelWarning - queue filling up, eager warming pauses.
	LevelWarning

	// LevelCritical - queue nearly full, slice uploads are shed.
	LevelCritical
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// UsageSource reports how full a queue is (0.0-1.0).
type UsageSource interface {
	UsageRatio() float64
}

// Controller derives a backpressure level from queue usage.
type Controller struct {
	mu sync.Mutex

	config config.BackpressureConfig
	source UsageSource

	level     atomic.Int32
	lastLevel Level

	stats ControllerStats

	onLevelChange func(old, new Level)
}

// ControllerStats holds controller statistics.
type ControllerStats struct {
	CurrentLevel  Level   `json:"-"`
	Level         string  `json:"level"`
	LevelChanges  int64   `json:"level_changes"`
	WarningCount  int64   `json:"warning_count"`
	CriticalCount int64   `json:"critical_count"`
	SlicesShed    int64   `json:"slices_shed"`
	QueueUsage    float64 `json:"queue_usage"`
}

// NewController creates a controller reading usage from source.
func NewController(cfg config.BackpressureConfig, source UsageSource) *Controller {
	return &Controller{config: cfg, source: source}
}

// SetOnLevelChange sets the callback for level changes.
func (c *Controller) SetOnLevelChange(fn func(old, new Level)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLevelChange = fn
}

// Check evaluates the queue and updates the level.
func (c *Controller) Check() Level {
	if !c.config.Enabled {
		return LevelNormal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	newLevel := c.determineLevel(c.source.UsageRatio())
	if newLevel != c.lastLevel {
		c.setLevel(newLevel)
	}
	return newLevel
}

// determineLevel applies the thresholds, with hysteresis on the way down.
func (c *Controller) determineLevel(usage float64) Level {
	thresholds := c.config.Thresholds
	hysteresis := c.config.Hysteresis

	if usage >= thresholds.Critical {
		return LevelCritical
	}
	if usage >= thresholds.Warning {
		if c.lastLevel == LevelCritical && usage >= thresholds.Critical-hysteresis {
			return LevelCritical
		}
		return LevelWarning
	}

	switch c.lastLevel {
	case LevelCritical:
		if usage < thresholds.Critical-hysteresis {
			if usage < thresholds.Warning-hysteresis {
				return LevelNormal
			}
			return LevelWarning
		}
		return LevelCritical
	case LevelWarning:
		if usage < thresholds.Warning-hysteresis {
			return LevelNormal
		}
		return LevelWarning
	default:
		return LevelNormal
	}
}

// setLevel must be called with mu held.
func (c *Controller) setLevel(newLevel Level) {
	oldLevel := c.lastLevel
	c.lastLevel = newLevel
	c.level.Store(int32(newLevel))
	c.stats.LevelChanges++

	switch newLevel {
	case LevelWarning:
		c.stats.WarningCount++
	case LevelCritical:
		c.stats.CriticalCount++
	}

	if c.onLevelChange != nil {
		c.onLevelChange(oldLevel, newLevel)
	}
}

// CurrentLevel returns the level of the last Check.
func (c *Controller) CurrentLevel() Level {
	return Level(c.level.Load())
}

// ShouldPauseWarming returns true if eager warming should wait.
func (c *Controller) ShouldPauseWarming() bool {
	return c.CurrentLevel() >= LevelWarning
}

// ShouldShedSlices returns true if slice uploads should be dropped.
func (c *Controller) ShouldShedSlices() bool {
	return c.CurrentLevel() >= LevelCritical
}

// RecordShed records a dropped slice upload.
func (c *Controller) RecordShed() {
	c.mu.Lock()
	c.stats.SlicesShed++
	c.mu.Unlock()
}

// Stats returns current statistics.
func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.CurrentLevel = c.CurrentLevel()
	s.Level = s.CurrentLevel.String()
	s.QueueUsage = c.source.UsageRatio()
	return s
}

