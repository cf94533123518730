// Package catalog keeps a local DuckDB record of every loaded cube so that
// cube listings work without a durable store.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/payload"
)

// Config holds catalog options.
type Config struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration
}

// DefaultConfig returns an in-memory catalog configuration.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns: 4,
		QueryTimeout: 10 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS cubes (
	id         VARCHAR PRIMARY KEY,
	filename   VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	document   VARCHAR NOT NULL
)`

// Catalog is safe for concurrent use.
type Catalog struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

// Open opens (and if needed creates) the catalog.
func Open(cfg Config) (*Catalog, error) {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w: %w", errors.ErrCatalog, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w: %w", errors.ErrCatalog, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w: %w", errors.ErrCatalog, err)
	}

	return &Catalog{db: db, config: cfg}, nil
}

// Close closes the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

func (c *Catalog) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.QueryTimeout)
}

func (c *Catalog) check() error {
	if c.closed {
		return fmt.Errorf("catalog closed: %w", errors.ErrCatalog)
	}
	return nil
}

// Upsert records or replaces a cube.
func (c *Catalog) Upsert(ctx context.Context, m *payload.Metadata) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return err
	}

	doc, err := payload.EncodeMetadata(m)
	if err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cubes (id, filename, created_at, updated_at, document)
		VALUES (?, ?, ?, ?, ?)
	`, m.CubeID, m.Filename, m.CreatedAt.UTC(), m.UpdatedAt.UTC(), string(doc))
	if err != nil {
		return fmt.Errorf("upsert cube %s: %w: %w", m.CubeID, errors.ErrCatalog, err)
	}
	return nil
}

// Get returns one cube's metadata.
func (c *Catalog) Get(ctx context.Context, id string) (*payload.Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var doc string
	err := c.db.QueryRowContext(ctx, `SELECT document FROM cubes WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("cube", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get cube %s: %w: %w", id, errors.ErrCatalog, err)
	}
	return payload.DecodeMetadata([]byte(doc))
}

// List returns every cube, newest first.
func (c *Catalog) List(ctx context.Context) ([]payload.Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `SELECT document FROM cubes ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list cubes: %w: %w", errors.ErrCatalog, err)
	}
	defer rows.Close()

	var out []payload.Metadata
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan cube: %w: %w", errors.ErrCatalog, err)
		}
		m, err := payload.DecodeMetadata([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Delete removes a cube. It reports whether a row existed.
func (c *Catalog) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return false, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.db.ExecContext(ctx, `DELETE FROM cubes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete cube %s: %w: %w", id, errors.ErrCatalog, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cube %s: %w: %w", id, errors.ErrCatalog, err)
	}
	return n > 0, nil
}

// Count returns the number of recorded cubes.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return 0, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM cubes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cubes: %w: %w", errors.ErrCatalog, err)
	}
	return n, nil
}

// Health checks database connectivity.
func (c *Catalog) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
