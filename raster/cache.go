package raster

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Cache is a persistent source-bytes cache keyed by source reference, so
// repeated runs over the same deck do not refetch remote images. A single
// connection guarded by a mutex is plenty for this access pattern.
type Cache struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// OpenCache opens (creating if needed) a cache database at the given path.
func OpenCache(path string, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("opening image cache %s: %w", path, err)
	}

	err = sqlitex.Execute(conn,
		`CREATE TABLE IF NOT EXISTS images (
			source     TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			fetched_at INTEGER NOT NULL
		)`, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("preparing image cache schema: %w", err)
	}

	return &Cache{conn: conn, log: log.Named("image-cache")}, nil
}

// Get returns cached bytes for a source reference.
func (c *Cache) Get(source string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := sqlitex.Execute(c.conn, `SELECT data FROM images WHERE source = ?`,
		&sqlitex.ExecOptions{
			Args: []any{source},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				data = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, data)
				return nil
			},
		})
	if err != nil {
		c.log.Warn("Image cache lookup failed", zap.String("source", source), zap.Error(err))
		return nil, false
	}
	return data, data != nil
}

// Put stores bytes for a source reference. Failures only cost a refetch
// next time, so they are logged and swallowed.
func (c *Cache) Put(source string, data []byte) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := sqlitex.Execute(c.conn,
		`INSERT OR REPLACE INTO images (source, data, fetched_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{source, data, time.Now().Unix()}})
	if err != nil {
		c.log.Warn("Image cache store failed", zap.String("source", source), zap.Error(err))
	}
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
