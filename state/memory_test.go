package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.SaveSession(ctx, SessionRecord{
		SessionID:   "s1",
		AutoApprove: true,
		Status:      "active",
		CreatedAt:   &now,
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

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d", len(sessions))
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.LoadSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_CheckpointSequencing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for seq := 1; seq <= 3; seq++ {
		err := store.SaveCheckpoint(ctx, CheckpointRecord{
			SessionID: "s1",
			Seq:       seq,
			NodeID:    "assistant",
			State:     map[string]any{"seq": seq},
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("SaveCheckpoint seq %d: %v", seq, err)
		}
	}

	// Duplicate seq is a conflict.
	err := store.SaveCheckpoint(ctx, CheckpointRecord{SessionID: "s1", Seq: 2})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	latest, err := store.LoadLatestCheckpoint(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadLatestCheckpoint: %v", err)
	}
	if latest.Seq != 3 {
		t.Fatalf("latest seq = %d", latest.Seq)
	}

	if _, err := store.LoadLatestCheckpoint(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	list, err := store.ListCheckpoints(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list = %d entries", len(list))
	}
}
