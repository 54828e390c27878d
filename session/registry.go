package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bandhan-ai/ralph/graph"
	"github.com/bandhan-ai/ralph/state"
)

// Registry maps session ids to live sessions. Open is idempotent per id;
// a reconnecting client gets the same session back, state and pending
// review included.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store          state.Store
	protectedTools []string
	autoApprove    bool
}

type RegistryOption func(*Registry)

// WithStateStore enables checkpoint restore on Open and session record
// persistence.
func WithStateStore(store state.Store) RegistryOption {
	return func(r *Registry) { r.store = store }
}

func WithProtectedTools(names []string) RegistryOption {
	return func(r *Registry) { r.protectedTools = names }
}

// WithAutoApprove sets the default auto-approve mode for new sessions.
func WithAutoApprove(enabled bool) RegistryOption {
	return func(r *Registry) { r.autoApprove = enabled }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{sessions: map[string]*Session{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns the live session for id, creating it on first use. When a
// state store is configured and holds a checkpoint for the id, the agent
// state is restored from the latest checkpoint instead of starting
// fresh.
func (r *Registry) Open(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}

	r.mu.RLock()
	existing, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	st, err := r.restoreState(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		return existing, nil
	}
	sess := &Session{
		ID:          id,
		AutoApprove: st.AutoApprove,
		CreatedAt:   time.Now().UTC(),
		state:       st,
	}
	r.sessions[id] = sess

	if r.store != nil {
		now := sess.CreatedAt
		_ = r.store.SaveSession(ctx, state.SessionRecord{
			SessionID:   id,
			AutoApprove: st.AutoApprove,
			Status:      "active",
			CreatedAt:   &now,
			UpdatedAt:   &now,
		})
	}
	return sess, nil
}

func (r *Registry) restoreState(ctx context.Context, id string) (*graph.AgentState, error) {
	if r.store != nil {
		cp, err := r.store.LoadLatestCheckpoint(ctx, id)
		switch {
		case err == nil:
			restored, restoreErr := graph.RestoreAgentState(cp.State)
			if restoreErr != nil {
				return nil, fmt.Errorf("failed to restore session %q: %w", id, restoreErr)
			}
			return restored, nil
		case errors.Is(err, state.ErrNotFound):
			// fresh session
		default:
			return nil, fmt.Errorf("failed to load checkpoint for session %q: %w", id, err)
		}
	}
	return graph.NewAgentState(r.protectedTools, r.autoApprove), nil
}

// Get returns the live session for id without creating one.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close removes the session from the registry. An undelivered pending
// review is discarded with it; the persisted session record is marked
// closed so listings stay truthful.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.markClosed()

	if r.store != nil {
		now := time.Now().UTC()
		created := sess.CreatedAt
		_ = r.store.SaveSession(ctx, state.SessionRecord{
			SessionID:   id,
			AutoApprove: sess.AutoApprove,
			Status:      "closed",
			CreatedAt:   &created,
			UpdatedAt:   &now,
		})
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionInfo is the listing view of a live session.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
	AutoApprove bool      `json:"yolo_mode"`
	Suspended   bool      `json:"suspended"`
}

func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, SessionInfo{
			SessionID:   sess.ID,
			CreatedAt:   sess.CreatedAt,
			AutoApprove: sess.AutoApprove,
			Suspended:   sess.Suspended(),
		})
	}
	return out
}
