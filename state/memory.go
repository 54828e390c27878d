package state

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the default checkpoint store; contents live for the
// process lifetime only.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]SessionRecord
	checkpoints map[string][]CheckpointRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    map[string]SessionRecord{},
		checkpoints: map[string][]CheckpointRecord{},
	}
}

func (m *MemoryStore) SaveSession(ctx context.Context, session SessionRecord) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
	return nil
}

func (m *MemoryStore) LoadSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return session, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	delete(m.checkpoints, sessionID)
	return nil
}

func (m *MemoryStore) SaveCheckpoint(ctx context.Context, checkpoint CheckpointRecord) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.checkpoints[checkpoint.SessionID]
	for _, c := range existing {
		if c.Seq == checkpoint.Seq {
			return ErrConflict
		}
	}
	m.checkpoints[checkpoint.SessionID] = append(existing, checkpoint)
	return nil
}

func (m *MemoryStore) LoadLatestCheckpoint(ctx context.Context, sessionID string) (CheckpointRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	checkpoints := m.checkpoints[sessionID]
	if len(checkpoints) == 0 {
		return CheckpointRecord{}, ErrNotFound
	}
	latest := checkpoints[0]
	for _, c := range checkpoints[1:] {
		if c.Seq > latest.Seq {
			latest = c
		}
	}
	return latest, nil
}

func (m *MemoryStore) ListCheckpoints(ctx context.Context, sessionID string, limit int) ([]CheckpointRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	checkpoints := append([]CheckpointRecord(nil), m.checkpoints[sessionID]...)
	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].Seq > checkpoints[j].Seq })
	if limit > 0 && len(checkpoints) > limit {
		checkpoints = checkpoints[:limit]
	}
	return checkpoints, nil
}

func (m *MemoryStore) Close() error { return nil }
