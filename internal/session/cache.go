package session

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is the small key-value store backing session persistence, so the
// storage medium stays swappable (in-memory for tests, sqlite on disk).
type Cache interface {
	Get(key string) (string, error)
	Put(key, value string) error
	Delete(key string) error
	Close() error
}

// MemoryCache is a process-local Cache for tests and ephemeral sessions.
type MemoryCache struct {
	mu sync.Mutex
	kv map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{kv: make(map[string]string)}
}

func (m *MemoryCache) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv[key], nil
}

func (m *MemoryCache) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *MemoryCache) Close() error { return nil }

// SQLiteCache persists session state across CLI invocations.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	c := &SQLiteCache{db: db}
	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) init() error {
	if _, err := c.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`)
	return err
}

func (c *SQLiteCache) Get(key string) (string, error) {
	row := c.db.QueryRow(`SELECT value FROM kv WHERE key=?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (c *SQLiteCache) Put(key, value string) error {
	_, err := c.db.Exec(`INSERT INTO kv(key,value,updated_at) VALUES(?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}

func (c *SQLiteCache) Delete(key string) error {
	_, err := c.db.Exec(`DELETE FROM kv WHERE key=?`, key)
	return err
}

func (c *SQLiteCache) Close() error {
	if c.db == nil {
		return errors.New("cache is nil")
	}
	return c.db.Close()
}
