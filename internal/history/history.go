// Package history persists completed map runs in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one completed map.
type Run struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
	Income    float64
	Cost      float64
	Items     int
	Drops     map[int]int
}

// Net is income after the map cost.
func (r Run) Net() float64 { return r.Income - r.Cost }

// Totals aggregates every stored run.
type Totals struct {
	Runs     int
	Income   float64
	Cost     float64
	Duration time.Duration
}

// PerHour is net income per hour of map time.
func (t Totals) PerHour() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return (t.Income - t.Cost) / t.Duration.Hours()
}

// Position is where reading of a game log stopped. Head fingerprints the
// start of the file.
type Position struct {
	Offset  int64
	Head    string
	SavedAt time.Time
}

// Store is a SQLite-backed run history.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		income REAL NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		items INTEGER NOT NULL DEFAULT 0,
		drops_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at);
	CREATE TABLE IF NOT EXISTS log_positions (
		path TEXT PRIMARY KEY,
		byte_offset INTEGER NOT NULL,
		head TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(runsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.dbPath }

// Save stores r, assigning an id when it has none. It returns the id.
func (s *Store) Save(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Duration == 0 && !r.EndedAt.IsZero() {
		r.Duration = r.EndedAt.Sub(r.StartedAt)
	}
	if r.Items == 0 {
		for _, n := range r.Drops {
			if n > 0 {
				r.Items += n
			}
		}
	}
	drops, err := json.Marshal(r.Drops)
	if err != nil {
		return "", fmt.Errorf("failed to encode drops: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, ended_at, duration_ms, income, cost, items, drops_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(), r.Duration.Milliseconds(),
		r.Income, r.Cost, r.Items, string(drops))
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	return r.ID, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, duration_ms, income, cost, items, drops_json
		 FROM runs ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			start, end, durMs int64
			drops             sql.NullString
		)
		if err := rows.Scan(&r.ID, &start, &end, &durMs, &r.Income, &r.Cost, &r.Items, &drops); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(start)
		r.EndedAt = time.UnixMilli(end)
		r.Duration = time.Duration(durMs) * time.Millisecond
		if drops.Valid && drops.String != "" {
			if err := json.Unmarshal([]byte(drops.String), &r.Drops); err != nil {
				return nil, fmt.Errorf("failed to decode drops for %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Totals sums every stored run.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		t     Totals
		durMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(income), 0), COALESCE(SUM(cost), 0), COALESCE(SUM(duration_ms), 0) FROM runs`,
	).Scan(&t.Runs, &t.Income, &t.Cost, &durMs)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to sum runs: %w", err)
	}
	t.Duration = time.Duration(durMs) * time.Millisecond
	return t, nil
}

// SavePosition records where reading of the log at path stopped.
func (s *Store) SavePosition(ctx context.Context, path string, p Position) error {
	if p.SavedAt.IsZero() {
		p.SavedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO log_positions (path, byte_offset, head, saved_at) VALUES (?, ?, ?, ?)`,
		path, p.Offset, p.Head, p.SavedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// Position returns the saved position for path. ok is false when none was saved.
func (s *Store) Position(ctx context.Context, path string) (p Position, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var saved int64
	err = s.db.QueryRowContext(ctx,
		`SELECT byte_offset, head, saved_at FROM log_positions WHERE path = ?`, path,
	).Scan(&p.Offset, &p.Head, &saved)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("failed to load position: %w", err)
	}
	p.SavedAt = time.UnixMilli(saved)
	return p, true, nil
}
