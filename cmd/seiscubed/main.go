// seiscubed serves seismic cubes built from SEG-Y uploads over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	defaults "github.com/xtxerr/seiscube/config"
	"github.com/xtxerr/seiscube/internal/api"
	"github.com/xtxerr/seiscube/internal/catalog"
	"github.com/xtxerr/seiscube/internal/config"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/objstore"
	"github.com/xtxerr/seiscube/internal/persist"
	"github.com/xtxerr/seiscube/internal/session"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seiscubed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// CLI flags
	fs := pflag.NewFlagSet("seiscubed", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "config.yaml", "config file path")
	listen := fs.StringP("listen", "l", "", "listen address (overrides config)")
	storeURL := fs.String("store", "", "object store URL, e.g. azblob://cubes, file:///var/lib/seiscube, mem:// (overrides config)")
	prefix := fs.String("store-prefix", "", "object key prefix (overrides config)")
	cacheSize := fs.Int("cache-size", 0, "slice cache capacity (overrides config)")
	catalogPath := fs.String("catalog", "", "DuckDB catalog file; enables the catalog (overrides config)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides config)")
	logJSON := fs.Bool("log-json", false, "log as JSON")
	load := fs.String("load", "", "SEG-Y file to load at startup")
	noWarm := fs.Bool("no-warm", false, "disable eager slice caching")
	showVersion := fs.BoolP("version", "v", false, "print version and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println("seiscubed", Version)
		return nil
	}

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.DefaultConfig()
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if fs.Changed("store") {
		cfg.Store.URL = *storeURL
	}
	if fs.Changed("store-prefix") {
		cfg.Store.Prefix = *prefix
	}
	if *cacheSize > 0 {
		cfg.Cache.MaxEntries = *cacheSize
	}
	if *catalogPath != "" {
		cfg.Catalog.Enabled = true
		cfg.Catalog.Path = *catalogPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}
	if *noWarm {
		cfg.Persist.Warm.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("seiscubed starting", "version", Version)

	// =========================================================================
	// Object store (optional)
	// =========================================================================

	var store objstore.Store
	if cfg.Store.URL != "" {
		timeout := cfg.Store.Timeout
		if timeout <= 0 {
			timeout = defaults.DefaultStoreTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		b, err := objstore.Open(ctx, cfg.Store.URL, cfg.Store.Prefix)
		cancel()
		if err != nil {
			// The service runs without persistence rather than not at all.
			log.Warn("object store unavailable, persistence disabled", "error", err)
		} else {
			store = b
		}
	} else {
		log.Info("no object store configured, persistence disabled")
	}

	// =========================================================================
	// Catalog (optional)
	// =========================================================================

	var cat *catalog.Catalog
	if cfg.Catalog.Enabled {
		ccfg := catalog.DefaultConfig()
		ccfg.Path = cfg.Catalog.Path
		cat, err = catalog.Open(ccfg)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		log.Info("catalog opened", "path", ccfg.Path)
	}

	// =========================================================================
	// Session
	// =========================================================================

	builder, err := session.BuilderFromConfig(cfg)
	if err != nil {
		return err
	}
	sess := session.New(session.Options{
		CacheSize: cfg.Cache.MaxEntries,
		Warm:      cfg.Persist.Warm,
		Builder:   builder,
		Bridge:    persist.NewBridge(store, persist.OptionsFromConfig(cfg)),
		Catalog:   cat,
	})

	if *load != "" {
		res, err := sess.LoadFile(context.Background(), *load)
		if err != nil {
			log.Error("startup load failed", "file", *load, "error", err)
		} else {
			log.Info("startup cube loaded", "cube_id", res.CubeID, "shape", res.Info.Shape)
			sess.StartWarm()
		}
	}

	// =========================================================================
	// HTTP server
	// =========================================================================

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.New(sess, cfg.Server).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Listen, "store", store != nil, "catalog", cat != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
	case err := <-errCh:
		if err != nil {
			sess.Close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first, then flush uploads and close the store.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := sess.Close(ctx); err != nil {
		log.Warn("session close", "error", err)
	}
	log.Info("stopped")
	return nil
}
