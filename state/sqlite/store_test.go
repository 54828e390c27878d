package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bandhan-ai/ralph/state"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "state.db"), WithWAL(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.SaveSession(ctx, state.SessionRecord{
		SessionID:   "s1",
		AutoApprove: true,
		Status:      "active",
		CreatedAt:   &created,
	}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	rec, err := store.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if !rec.AutoApprove || rec.Status != "active" {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.CreatedAt == nil || !rec.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", rec.CreatedAt, created)
	}

	// Upsert updates in place.
	if err := store.SaveSession(ctx, state.SessionRecord{
		SessionID: "s1",
		Status:    "closed",
	}); err != nil {
		t.Fatalf("SaveSession update: %v", err)
	}
	rec, err = store.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if rec.Status != "closed" {
		t.Fatalf("status = %q", rec.Status)
	}

	if _, err := store.LoadSession(ctx, "missing"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for seq := 1; seq <= 3; seq++ {
		err := store.SaveCheckpoint(ctx, state.CheckpointRecord{
			SessionID: "s1",
			Seq:       seq,
			NodeID:    "assistant",
			State: map[string]any{
				"state": map[string]any{"seq": float64(seq)},
			},
		})
		if err != nil {
			t.Fatalf("SaveCheckpoint seq %d: %v", seq, err)
		}
	}

	err := store.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "s1", Seq: 2})
	if !errors.Is(err, state.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	latest, err := store.LoadLatestCheckpoint(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadLatestCheckpoint: %v", err)
	}
	if latest.Seq != 3 || latest.NodeID != "assistant" {
		t.Fatalf("latest = %+v", latest)
	}
	inner, ok := latest.State["state"].(map[string]any)
	if !ok || inner["seq"] != float64(3) {
		t.Fatalf("state = %v", latest.State)
	}

	list, err := store.ListCheckpoints(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 2 || list[0].Seq != 3 || list[1].Seq != 2 {
		t.Fatalf("list = %+v", list)
	}
}

func TestDeleteSessionRemovesCheckpoints(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveSession(ctx, state.SessionRecord{SessionID: "s1"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, state.CheckpointRecord{
		SessionID: "s1", Seq: 1, NodeID: "user", State: map[string]any{},
	}); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.LoadSession(ctx, "s1"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("session err = %v", err)
	}
	if _, err := store.LoadLatestCheckpoint(ctx, "s1"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("checkpoint err = %v", err)
	}
}
