// Package state persists session checkpoints: the durable snapshot of an
// agent's transcript plus its graph position, keyed by session id.
package state

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("state: not found")
	ErrConflict = errors.New("state: conflict")
)

type Store interface {
	SaveSession(ctx context.Context, session SessionRecord) error
	LoadSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	// DeleteSession removes the session record and all of its checkpoints.
	DeleteSession(ctx context.Context, sessionID string) error

	SaveCheckpoint(ctx context.Context, checkpoint CheckpointRecord) error
	LoadLatestCheckpoint(ctx context.Context, sessionID string) (CheckpointRecord, error)
	ListCheckpoints(ctx context.Context, sessionID string, limit int) ([]CheckpointRecord, error)

	Close() error
}
