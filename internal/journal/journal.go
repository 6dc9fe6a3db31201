// Package journal keeps a local record of every transfer and mint the CLI
// built, whether it was submitted or only returned as an unsigned payload.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusUnsigned  Status = "unsigned"
	StatusSubmitted Status = "submitted"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("journal entry not found")

const defaultListLimit = 20

type Entry struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Status    Status          `json:"status"`
	Hash      string          `json:"hash,omitempty"`
	Summary   string          `json:"summary"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result"`
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			hash TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			result BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores e, assigning an id and timestamp when they are unset, and
// returns the stored entry. Recording an existing id replaces it.
func (s *Store) Record(e Entry) (Entry, error) {
	if strings.TrimSpace(e.Action) == "" {
		return Entry{}, fmt.Errorf("record transaction: missing action")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusUnsigned
	}
	if len(e.Result) == 0 {
		e.Result = json.RawMessage("null")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return Entry{}, fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return Entry{}, fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO transactions (id, action, status, hash, summary, created_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			action=excluded.action,
			status=excluded.status,
			hash=excluded.hash,
			summary=excluded.summary,
			result=excluded.result
	`, e.ID, e.Action, string(e.Status), e.Hash, e.Summary, e.CreatedAt.UnixMilli(), []byte(e.Result))
	if err != nil {
		return Entry{}, fmt.Errorf("record transaction: %w", err)
	}
	return e, nil
}

func (s *Store) Get(id string) (Entry, error) {
	row := s.db.QueryRow("SELECT id, action, status, hash, summary, created_at, result FROM transactions WHERE id = ?", id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Entry{}, fmt.Errorf("read transaction: %w", err)
	}
	return e, nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Action string
	Status Status
	Limit  int
}

// List returns entries newest first.
func (s *Store) List(f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := "SELECT id, action, status, hash, summary, created_at, result FROM transactions"
	var (
		where []string
		args  []any
	)
	if a := strings.TrimSpace(f.Action); a != "" {
		where = append(where, "action = ?")
		args = append(args, a)
	}
	if st := strings.TrimSpace(string(f.Status)); st != "" {
		where = append(where, "status = ?")
		args = append(args, st)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return entries, nil
}

func ParseStatus(v string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(v))) {
	case StatusUnsigned:
		return StatusUnsigned, true
	case StatusSubmitted:
		return StatusSubmitted, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		status  string
		created int64
		result  []byte
	)
	if err := row.Scan(&e.ID, &e.Action, &status, &e.Hash, &e.Summary, &created, &result); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.Result = json.RawMessage(result)
	return e, nil
}
