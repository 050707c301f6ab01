// Package store is the bounded local cache behind the room-info providers.
//
// It keeps one room catalog and any number of timeline buckets. A bucket is
// keyed by a date-range token and holds one entry per room. Every read or
// write of a bucket records when it was last queried. When the stored bytes
// exceed the capacity, all but the most recently queried buckets are
// dropped. The catalog is never evicted.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	appLog "roomfree/internal/log"
)

var (
	// ErrNotFound is returned when no entry is stored under a key.
	ErrNotFound = errors.New("store: not found")
	// ErrCapacityExceeded is returned when a write does not fit even after
	// eviction. The write is not kept.
	ErrCapacityExceeded = errors.New("store: capacity exceeded")
)

// DefaultKeepBuckets is how many recently queried buckets survive eviction.
const DefaultKeepBuckets = 3

const schema = `
CREATE TABLE IF NOT EXISTS catalog (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS buckets (
	token        TEXT    PRIMARY KEY,
	last_queried INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	token      TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (token, key)
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the SQLite database file. Its directory must exist.
	Path string
	// MaxBytes caps the stored payload bytes. Zero means unbounded.
	MaxBytes int64
	// KeepBuckets is how many buckets eviction retains. Zero means
	// DefaultKeepBuckets.
	KeepBuckets int
	// PoolSize is the number of connections. Zero means 4.
	PoolSize int
	// Now replaces time.Now, for deterministic eviction in tests.
	Now func() time.Time
}

// Entry is a stored payload and when it was written.
type Entry struct {
	Data      []byte
	UpdatedAt time.Time
}

// Bucket describes one date-range bucket.
type Bucket struct {
	Token       string
	LastQueried time.Time
	Entries     int
	Bytes       int64
}

// Store is safe for concurrent use.
type Store struct {
	pool     *sqlitex.Pool
	maxBytes int64
	keep     int
	now      func() time.Time

	// writeMu makes a write and the eviction it may trigger atomic with
	// respect to other writes.
	writeMu sync.Mutex
}

// Open opens or creates the store database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: Path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	keep := cfg.KeepBuckets
	if keep <= 0 {
		keep = DefaultKeepBuckets
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}
	appLog.Debug("store opened", "path", cfg.Path, "max_bytes", cfg.MaxBytes, "keep_buckets", keep)

	return &Store{
		pool:     pool,
		maxBytes: cfg.MaxBytes,
		keep:     keep,
		now:      now,
	}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Catalog returns the stored room catalog.
func (s *Store) Catalog(ctx context.Context) (Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("store: catalog: %w", err)
	}
	defer s.pool.Put(conn)

	var entry Entry
	found := false
	err = sqlitex.Execute(conn, "SELECT data, updated_at FROM catalog WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry = scanEntry(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("store: catalog: %w", err)
	}
	if !found {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// PutCatalog replaces the stored room catalog.
func (s *Store) PutCatalog(ctx context.Context, data []byte) error {
	return s.write(ctx, "catalog", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT INTO catalog (id, data, updated_at) VALUES (1, ?, ?) "+
				"ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at",
			&sqlitex.ExecOptions{Args: []any{data, s.now().UnixNano()}})
	})
}

// Get returns the entry for key in the bucket token and marks the bucket
// as queried now.
func (s *Store) Get(ctx context.Context, token, key string) (Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("store: get: %w", err)
	}
	defer s.pool.Put(conn)

	var entry Entry
	found := false
	err = sqlitex.Execute(conn, "SELECT data, updated_at FROM entries WHERE token = ? AND key = ?", &sqlitex.ExecOptions{
		Args: []any{token, key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry = scanEntry(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("store: get %s %s: %w", token, key, err)
	}
	if !found {
		return Entry{}, ErrNotFound
	}
	if err := s.touch(conn, token); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Put stores data under key in the bucket token and marks the bucket as
// queried now. If the store is then over capacity, older buckets are
// evicted.
func (s *Store) Put(ctx context.Context, token, key string, data []byte) error {
	return s.write(ctx, token+" "+key, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"INSERT INTO entries (token, key, data, updated_at) VALUES (?, ?, ?, ?) "+
				"ON CONFLICT (token, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at",
			&sqlitex.ExecOptions{Args: []any{token, key, data, s.now().UnixNano()}})
		if err != nil {
			return err
		}
		return s.touch(conn, token)
	})
}

// Buckets lists the buckets, most recently queried first.
func (s *Store) Buckets(ctx context.Context) ([]Bucket, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: buckets: %w", err)
	}
	defer s.pool.Put(conn)

	var buckets []Bucket
	err = sqlitex.Execute(conn, `
		SELECT b.token, b.last_queried, COUNT(e.key), COALESCE(SUM(LENGTH(e.data)), 0)
		FROM buckets b LEFT JOIN entries e ON e.token = b.token
		GROUP BY b.token
		ORDER BY b.last_queried DESC, b.token DESC`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			buckets = append(buckets, Bucket{
				Token:       stmt.ColumnText(0),
				LastQueried: time.Unix(0, stmt.ColumnInt64(1)),
				Entries:     stmt.ColumnInt(2),
				Bytes:       stmt.ColumnInt64(3),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: buckets: %w", err)
	}
	return buckets, nil
}

// Size is the number of payload bytes stored, catalog included.
func (s *Store) Size(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: size: %w", err)
	}
	defer s.pool.Put(conn)
	return size(conn)
}

func scanEntry(stmt *sqlite.Stmt) Entry {
	data := make([]byte, stmt.ColumnLen(0))
	stmt.ColumnBytes(0, data)
	return Entry{Data: data, UpdatedAt: time.Unix(0, stmt.ColumnInt64(1))}
}

func (s *Store) touch(conn *sqlite.Conn, token string) error {
	err := sqlitex.Execute(conn,
		"INSERT INTO buckets (token, last_queried) VALUES (?, ?) "+
			"ON CONFLICT (token) DO UPDATE SET last_queried = excluded.last_queried",
		&sqlitex.ExecOptions{Args: []any{token, s.now().UnixNano()}})
	if err != nil {
		return fmt.Errorf("store: touch %s: %w", token, err)
	}
	return nil
}

func size(conn *sqlite.Conn) (int64, error) {
	var total int64
	err := sqlitex.Execute(conn, `
		SELECT (SELECT COALESCE(SUM(LENGTH(data)), 0) FROM entries) +
		       (SELECT COALESCE(SUM(LENGTH(data)), 0) FROM catalog)`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			total = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("store: size: %w", err)
	}
	return total, nil
}

// write runs apply in a transaction and then brings the store back under
// capacity. If it cannot, the transaction is rolled back.
func (s *Store) write(ctx context.Context, what string, apply func(*sqlite.Conn) error) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: put %s: %w", what, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := apply(conn); err != nil {
		return fmt.Errorf("store: put %s: %w", what, err)
	}
	if s.maxBytes <= 0 {
		return nil
	}

	total, err := size(conn)
	if err != nil {
		return err
	}
	if total <= s.maxBytes {
		return nil
	}

	evicted, err := s.evict(conn)
	if err != nil {
		return err
	}
	after, err := size(conn)
	if err != nil {
		return err
	}
	appLog.Info("store evicted buckets", "count", evicted, "bytes_before", total, "bytes_after", after, "max_bytes", s.maxBytes)
	if after > s.maxBytes {
		return fmt.Errorf("store: put %s (%d bytes, limit %d): %w", what, after, s.maxBytes, ErrCapacityExceeded)
	}
	return nil
}

// evict drops every bucket except the s.keep most recently queried ones.
func (s *Store) evict(conn *sqlite.Conn) (int, error) {
	var stale []string
	err := sqlitex.Execute(conn,
		"SELECT token FROM buckets ORDER BY last_queried DESC, token DESC LIMIT -1 OFFSET ?",
		&sqlitex.ExecOptions{
			Args: []any{s.keep},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stale = append(stale, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("store: evict: %w", err)
	}
	for _, token := range stale {
		if err := sqlitex.Execute(conn, "DELETE FROM entries WHERE token = ?", &sqlitex.ExecOptions{Args: []any{token}}); err != nil {
			return 0, fmt.Errorf("store: evict %s: %w", token, err)
		}
		if err := sqlitex.Execute(conn, "DELETE FROM buckets WHERE token = ?", &sqlitex.ExecOptions{Args: []any{token}}); err != nil {
			return 0, fmt.Errorf("store: evict %s: %w", token, err)
		}
	}
	return len(stale), nil
}
