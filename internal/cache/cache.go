// Package cache is a local SQLite key-value cache with TTL expiry that sits
// in front of the embedding and vector-store services. If its backing store
// cannot be opened it degrades to a pass-through: every get misses, every
// set is a no-op, and callers never see an error. Cache failures must never
// block the serving path.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTTL is how long cached payloads stay valid (24 hours).
const DefaultTTL = 24 * time.Hour

const dbFileName = "blender_docs_cache.db"

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_expires ON entries(expires_at);
`

// Stats reports cache counters. Hits/Misses/Evicted are process-lifetime;
// Entries is the current row count.
type Stats struct {
	Hits    int64 `json:"hit_count"`
	Misses  int64 `json:"miss_count"`
	Entries int64 `json:"entry_count"`
	Evicted int64 `json:"evicted_count"`
	Enabled bool  `json:"enabled"`
}

// Cache is a TTL key-value store backed by SQLite. Safe for concurrent use.
type Cache struct {
	db       *sql.DB
	ttl      time.Duration
	disabled bool
	logger   *slog.Logger

	// now is injectable for expiry tests.
	now func() time.Time

	hits    atomic.Int64
	misses  atomic.Int64
	evicted atomic.Int64
}

// Open creates or opens the cache database under dir. It never fails: any
// storage error (unwritable directory, corrupt database) logs a warning and
// returns a disabled cache that misses on every read for the remainder of
// the process.
func Open(dir string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}

	db, err := open(dir)
	if err != nil {
		logger.Warn("cache storage unavailable, caching disabled for this session", "dir", dir, "error", err)
		c.disabled = true
		return c
	}
	c.db = db

	// Sweep rows that expired while the process was down.
	if n := c.sweep(context.Background()); n > 0 {
		logger.Info("swept expired cache entries", "count", n)
	}

	return c
}

func open(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, err
	}

	// WAL mode for concurrent readers; SQLite wants a single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Enabled reports whether persistence is active.
func (c *Cache) Enabled() bool {
	return !c.disabled
}

// Get returns the payload stored under key, or ok=false on a miss. An
// expired entry counts as a miss and is deleted on the spot; a read never
// returns an expired payload. Storage errors degrade to misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.disabled {
		c.misses.Add(1)
		return nil, false
	}

	var payload []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		"SELECT payload, expires_at FROM entries WHERE key = ?", key,
	).Scan(&payload, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.misses.Add(1)
		return nil, false
	case err != nil:
		c.logger.Warn("cache read failed", "error", err)
		c.misses.Add(1)
		return nil, false
	}

	if c.now().Unix() >= expiresAt {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err == nil {
			c.evicted.Add(1)
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return payload, true
}

// Set stores payload under key with the configured TTL, replacing any
// previous value. Errors are logged, never returned.
func (c *Cache) Set(ctx context.Context, key string, payload []byte) {
	if c.disabled {
		return
	}

	now := c.now()
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (key, payload, created_at, expires_at) VALUES (?, ?, ?, ?)",
		key, payload, now.Unix(), now.Add(c.ttl).Unix(),
	)
	if err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
}

// Invalidate removes the entry stored under key, if any.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c.disabled {
		return
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
		c.logger.Warn("cache invalidate failed", "error", err)
	}
}

// Stats returns current cache counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	stats := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Evicted: c.evicted.Load(),
		Enabled: !c.disabled,
	}

	if c.disabled {
		return stats
	}

	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&stats.Entries); err != nil {
		c.logger.Warn("cache stats query failed", "error", err)
	}
	return stats
}

// Close releases the database handle.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// sweep deletes all expired rows and returns how many were removed.
func (c *Cache) sweep(ctx context.Context) int64 {
	result, err := c.db.ExecContext(ctx,
		"DELETE FROM entries WHERE expires_at <= ?", c.now().Unix())
	if err != nil {
		c.logger.Warn("cache sweep failed", "error", err)
		return 0
	}
	n, _ := result.RowsAffected()
	c.evicted.Add(n)
	return n
}
