// Package cache persists rendered action results in SQLite so repeated
// market-data questions can be answered without calling the provider again,
// and can fall back to stale answers when the provider is down.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 25 * time.Millisecond
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Result struct {
	Hit      bool
	Value    []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

// CommandStats summarizes the entries written by one command.
type CommandStats struct {
	Command string `json:"command"`
	Entries int    `json:"entries"`
	Expired int    `json:"expired"`
	Bytes   int64  `json:"bytes"`
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS action_results (
			key TEXT PRIMARY KEY,
			command TEXT NOT NULL DEFAULT '',
			value BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			ttl_seconds INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS action_results_command ON action_results (command);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	_, _ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes entries whose TTL has fully expired and reports how many
// rows went away. Open calls it so the file does not grow without bound.
func (s *Store) Prune() (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	return s.exec("prune cache", "DELETE FROM action_results WHERE created_at + ttl_seconds < ?", s.now().UTC().Unix())
}

// Purge drops every entry written by command, or all entries when command
// is empty.
func (s *Store) Purge(command string) (int64, error) {
	if command == "" {
		return s.exec("purge cache", "DELETE FROM action_results")
	}
	return s.exec("purge cache", "DELETE FROM action_results WHERE command = ?", command)
}

func (s *Store) Stats() ([]CommandStats, error) {
	rows, err := s.db.Query(`
		SELECT command,
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at + ttl_seconds < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(value)), 0)
		FROM action_results
		GROUP BY command
		ORDER BY command
	`, s.now().UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()

	out := []CommandStats{}
	for rows.Next() {
		var st CommandStats
		if err := rows.Scan(&st.Command, &st.Entries, &st.Expired, &st.Bytes); err != nil {
			return nil, fmt.Errorf("cache stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return out, nil
}

// Get reads key. maxStale bounds how far past its TTL an entry may be
// before it is flagged TooStale; a negative maxStale means no bound.
func (s *Store) Get(key string, maxStale time.Duration) (Result, error) {
	var value []byte
	var createdUnix int64
	var ttlSeconds int64
	err := s.db.QueryRow("SELECT value, created_at, ttl_seconds FROM action_results WHERE key = ?", key).Scan(&value, &createdUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{Hit: false}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := s.now().Sub(time.Unix(createdUnix, 0))
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	stale := age > ttl
	return Result{
		Hit:      true,
		Value:    value,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > ttl+maxStale,
	}, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	return s.SetFor("", key, value, ttl)
}

// SetFor writes key and records the command that produced it, so entries
// can later be counted and purged per command.
func (s *Store) SetFor(command, key string, value []byte, ttl time.Duration) error {
	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err := s.exec("cache write", `
		INSERT INTO action_results (key, command, value, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			command=excluded.command,
			value=excluded.value,
			created_at=excluded.created_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, command, value, s.now().UTC().Unix(), ttlSeconds)
	return err
}

// exec runs a write statement while holding the cross-process file lock.
func (s *Store) exec(what, query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return 0, fmt.Errorf("%s: lock cache: %w", what, err)
	}
	if !locked {
		return 0, fmt.Errorf("%s: lock cache: timeout acquiring lock", what)
	}
	defer func() { _ = s.lock.Unlock() }()

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
