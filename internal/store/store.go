// Package store persists session transcripts in sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/session"
)

// ErrNotFound is returned when a session ID has no stored transcript.
var ErrNotFound = errors.New("store: session not found")

// Record is one persisted session.
type Record struct {
	SessionID string
	Model     string
	FactsHash string
	CreatedAt time.Time
	ClosedAt  time.Time
	Turns     []model.Turn
}

// Summary describes a stored session without its turns.
type Summary struct {
	SessionID string    `json:"session_id"`
	Model     string    `json:"model"`
	FactsHash string    `json:"facts_hash"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at"`
	TurnCount int       `json:"turn_count"`
}

// Store is a sqlite-backed transcript store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// :memory: databases exist per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL DEFAULT '',
		facts_hash TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		closed_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// SaveTranscript writes a session and all of its turns in one transaction.
// Saving the same session again replaces its turns.
func (s *Store) SaveTranscript(ctx context.Context, r Record) error {
	if r.SessionID == "" {
		return fmt.Errorf("store: session id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var closed int64
	if !r.ClosedAt.IsZero() {
		closed = r.ClosedAt.UnixMilli()
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, model, facts_hash, created_at, closed_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		model = excluded.model,
		facts_hash = excluded.facts_hash,
		closed_at = excluded.closed_at`,
		r.SessionID, r.Model, r.FactsHash, r.CreatedAt.UnixMilli(), closed)
	if err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, r.SessionID); err != nil {
		return fmt.Errorf("store: clear turns: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO turns (session_id, seq, role, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare turn insert: %w", err)
	}
	defer stmt.Close()
	for i, t := range r.Turns {
		if _, err := stmt.ExecContext(ctx, r.SessionID, i, string(t.Role), t.Text); err != nil {
			return fmt.Errorf("store: insert turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// SaveSession snapshots a live context.
func (s *Store) SaveSession(ctx context.Context, sc *session.Context, modelName, factsHash string, closedAt time.Time) error {
	snap := sc.Snapshot()
	return s.SaveTranscript(ctx, Record{
		SessionID: snap.SessionID,
		Model:     modelName,
		FactsHash: factsHash,
		CreatedAt: snap.CreatedAt,
		ClosedAt:  closedAt,
		Turns:     snap.Turns,
	})
}

// LoadTranscript returns the stored session with its turns in order.
func (s *Store) LoadTranscript(ctx context.Context, id string) (*Record, error) {
	r := &Record{SessionID: id}
	var created, closed int64
	err := s.db.QueryRowContext(ctx,
		`SELECT model, facts_hash, created_at, closed_at FROM sessions WHERE id = ?`, id,
	).Scan(&r.Model, &r.FactsHash, &created, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session: %w", err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	if closed != 0 {
		r.ClosedAt = time.UnixMilli(closed).UTC()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT role, content FROM turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("store: load turns: %w", err)
	}
	defer rows.Close()
	r.Turns = []model.Turn{}
	for rows.Next() {
		var t model.Turn
		var role string
		if err := rows.Scan(&role, &t.Text); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		t.Role = model.Role(role)
		r.Turns = append(r.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate turns: %w", err)
	}
	return r, nil
}

// Restore rebuilds a live context from a stored session.
func (s *Store) Restore(ctx context.Context, id string) (*session.Context, error) {
	r, err := s.LoadTranscript(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Context()
}

// Context rebuilds a live context from the record.
func (r *Record) Context() (*session.Context, error) {
	return session.Restore(session.Transcript{SessionID: r.SessionID, CreatedAt: r.CreatedAt, Turns: r.Turns})
}

// ListSessions returns every stored session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT s.id, s.model, s.facts_hash, s.created_at, s.closed_at, COUNT(t.seq)
	FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
	GROUP BY s.id
	ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		var created, closed int64
		if err := rows.Scan(&sum.SessionID, &sum.Model, &sum.FactsHash, &created, &closed, &sum.TurnCount); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(created).UTC()
		if closed != 0 {
			sum.ClosedAt = time.UnixMilli(closed).UTC()
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate sessions: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
