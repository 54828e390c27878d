// Package sqlite is the SQLite-backed checkpoint store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bandhan-ai/ralph/state"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) SaveSession(ctx context.Context, session state.SessionRecord) error {
	if session.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	now := time.Now().UTC()
	if session.CreatedAt == nil {
		session.CreatedAt = &now
	}
	if session.UpdatedAt == nil {
		session.UpdatedAt = &now
	}
	if session.Status == "" {
		session.Status = "active"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, auto_approve, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			auto_approve = excluded.auto_approve,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		session.SessionID, session.AutoApprove, session.Status,
		session.CreatedAt.Format(time.RFC3339Nano), session.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (state.SessionRecord, error) {
	if sessionID == "" {
		return state.SessionRecord{}, fmt.Errorf("session_id is required")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, auto_approve, status, created_at, updated_at
		FROM sessions WHERE session_id = ?`, sessionID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return state.SessionRecord{}, state.ErrNotFound
	}
	if err != nil {
		return state.SessionRecord{}, fmt.Errorf("failed to load session: %w", err)
	}
	return rec, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]state.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, auto_approve, status, created_at, updated_at
		FROM sessions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]state.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoints WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint state.CheckpointRecord) error {
	if checkpoint.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(checkpoint.State)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, seq, node_id, state, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		checkpoint.SessionID, checkpoint.Seq, checkpoint.NodeID,
		string(raw), checkpoint.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return state.ErrConflict
		}
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *Store) LoadLatestCheckpoint(ctx context.Context, sessionID string) (state.CheckpointRecord, error) {
	records, err := s.ListCheckpoints(ctx, sessionID, 1)
	if err != nil {
		return state.CheckpointRecord{}, err
	}
	if len(records) == 0 {
		return state.CheckpointRecord{}, state.ErrNotFound
	}
	return records[0], nil
}

func (s *Store) ListCheckpoints(ctx context.Context, sessionID string, limit int) ([]state.CheckpointRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, node_id, state, created_at
		FROM checkpoints WHERE session_id = ?
		ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	out := make([]state.CheckpointRecord, 0, limit)
	for rows.Next() {
		var rec state.CheckpointRecord
		var rawState, createdAt string
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.NodeID, &rawState, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if err := json.Unmarshal([]byte(rawState), &rec.State); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint state: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (state.SessionRecord, error) {
	var rec state.SessionRecord
	var autoApprove int
	var createdAt, updatedAt sql.NullString
	if err := row.Scan(&rec.SessionID, &autoApprove, &rec.Status, &createdAt, &updatedAt); err != nil {
		return state.SessionRecord{}, err
	}
	rec.AutoApprove = autoApprove != 0
	if createdAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, createdAt.String); err == nil {
			rec.CreatedAt = &t
		}
	}
	if updatedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, updatedAt.String); err == nil {
			rec.UpdatedAt = &t
		}
	}
	return rec, nil
}
