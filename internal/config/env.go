package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables read by ApplyEnv.
const (
	EnvListen      = "SEISCUBE_LISTEN"
	EnvStoreURL    = "SEISCUBE_STORE_URL"
	EnvStorePrefix = "SEISCUBE_STORE_PREFIX"
	EnvCacheSize   = "MAX_SLICE_CACHE"
	EnvLogLevel    = "SEISCUBE_LOG_LEVEL"
)

// ApplyEnv overlays environment variables onto the configuration.
// lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Server.Listen = v
	}
	if v, ok := lookup(EnvStoreURL); ok {
		c.Store.URL = v
	}
	if v, ok := lookup(EnvStorePrefix); ok {
		c.Store.Prefix = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvCacheSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: expected a positive integer, got %q", EnvCacheSize, v)
		}
		c.Cache.MaxEntries = n
	}

	return nil
}
