// Package redis is the Redis-backed checkpoint store. Entries carry a TTL
// so abandoned sessions age out on their own.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bandhan-ai/ralph/state"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultLimit  = 50
	defaultPrefix = "ralph"
)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) { s.password = password }
}

func WithDB(db int) Option {
	return func(s *Store) { s.db = db }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
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

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.SessionID), string(raw), s.ttl)
	pipe.ZAdd(ctx, s.sessionIndexKey(), goredis.Z{
		Score:  float64(session.CreatedAt.Unix()),
		Member: session.SessionID,
	})
	pipe.Expire(ctx, s.sessionIndexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (state.SessionRecord, error) {
	if sessionID == "" {
		return state.SessionRecord{}, fmt.Errorf("session_id is required")
	}
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return state.SessionRecord{}, state.ErrNotFound
		}
		return state.SessionRecord{}, fmt.Errorf("failed to load session from redis: %w", err)
	}
	var session state.SessionRecord
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return state.SessionRecord{}, fmt.Errorf("failed to decode session from redis: %w", err)
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]state.SessionRecord, error) {
	ids, err := s.client.ZRange(ctx, s.sessionIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session ids: %w", err)
	}
	out := make([]state.SessionRecord, 0, len(ids))
	staleIDs := make([]string, 0)
	for _, id := range ids {
		session, err := s.LoadSession(ctx, id)
		if err != nil {
			if err == state.ErrNotFound {
				staleIDs = append(staleIDs, id)
				continue
			}
			return nil, err
		}
		out = append(out, session)
	}
	if len(staleIDs) > 0 {
		members := make([]any, 0, len(staleIDs))
		for _, id := range staleIDs {
			members = append(members, id)
		}
		_ = s.client.ZRem(ctx, s.sessionIndexKey(), members...).Err()
	}
	return out, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.Del(ctx, s.checkpointKey(sessionID))
	pipe.ZRem(ctx, s.sessionIndexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint state.CheckpointRecord) error {
	if checkpoint.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if checkpoint.State == nil {
		checkpoint.State = map[string]any{}
	}
	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = time.Now().UTC()
	}

	key := s.checkpointKey(checkpoint.SessionID)
	field := strconv.Itoa(checkpoint.Seq)
	exists, err := s.client.HExists(ctx, key, field).Result()
	if err != nil {
		return fmt.Errorf("failed to check checkpoint seq: %w", err)
	}
	if exists {
		return state.ErrConflict
	}

	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, field, string(raw))
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint in redis: %w", err)
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
	values, err := s.client.HGetAll(ctx, s.checkpointKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints from redis: %w", err)
	}
	out := make([]state.CheckpointRecord, 0, len(values))
	for _, raw := range values {
		var rec state.CheckpointRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, sessionID)
}

func (s *Store) sessionIndexKey() string {
	return fmt.Sprintf("%s:sessions", s.prefix)
}

func (s *Store) checkpointKey(sessionID string) string {
	return fmt.Sprintf("%s:checkpoints:%s", s.prefix, sessionID)
}
