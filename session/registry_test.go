package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/bandhan-ai/ralph/graph"
	"github.com/bandhan-ai/ralph/llm"
	"github.com/bandhan-ai/ralph/state"
	"github.com/bandhan-ai/ralph/tools"
	"github.com/bandhan-ai/ralph/types"
)

type scriptedProvider struct {
	responses []types.Response
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Tools: true}
}

func (p *scriptedProvider) Generate(ctx context.Context, req types.Request) (types.Response, error) {
	_ = ctx
	_ = req
	if p.calls >= len(p.responses) {
		return types.Response{}, fmt.Errorf("script exhausted")
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func newTestEngine(t *testing.T, provider llm.Provider, store state.Store) *graph.Engine {
	t.Helper()
	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewFuncTool("send_campaign_email", "send", nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			_ = ctx
			_ = args
			return "sent", nil
		}))
	opts := []graph.Option{}
	if store != nil {
		opts = append(opts, graph.WithStore(store))
	}
	engine, err := graph.NewEngine(provider, registry, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func protectedCallResponse() types.Response {
	return types.Response{Message: types.Message{
		ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "send_campaign_email", Arguments: json.RawMessage(`{"customer_id":7}`)},
		},
	}}
}

func textResponse(text string) types.Response {
	return types.Response{Message: types.Message{Content: text}}
}

func TestRegistry_OpenIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	first, err := registry.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, err := registry.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if first != second {
		t.Fatal("Open must return the same session for the same id")
	}
	if registry.Len() != 1 {
		t.Fatalf("Len = %d", registry.Len())
	}
}

func TestRegistry_OpenRestoresFromCheckpoint(t *testing.T) {
	store := state.NewMemoryStore()
	provider := &scriptedProvider{responses: []types.Response{textResponse("hello there")}}
	engine := newTestEngine(t, provider, store)
	ctx := context.Background()

	registry := NewRegistry(WithStateStore(store))
	sess, err := registry.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := sess.Turn(ctx, engine, "hi", nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if err := registry.Close(ctx, "s1"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh registry entry restores the transcript from the store.
	reopened, err := registry.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	st, err := reopened.BeginTurn()
	if err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}
	defer reopened.EndTurn(graph.TurnResult{})
	if len(st.Messages) != 2 {
		t.Fatalf("restored %d messages, want 2", len(st.Messages))
	}
}

func TestSession_TurnRejectedWhileReviewPending(t *testing.T) {
	provider := &scriptedProvider{responses: []types.Response{protectedCallResponse()}}
	engine := newTestEngine(t, provider, nil)
	ctx := context.Background()

	registry := NewRegistry(WithProtectedTools([]string{"send_campaign_email"}))
	sess, err := registry.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result, err := sess.Turn(ctx, engine, "send it", nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !result.Suspended {
		t.Fatal("expected suspension")
	}
	if !sess.Suspended() {
		t.Fatal("session must report pending review")
	}

	if _, err := sess.Turn(ctx, engine, "another", nil); !errors.Is(err, ErrReviewPending) {
		t.Fatalf("err = %v, want ErrReviewPending", err)
	}
}

func TestSession_ResumeConsumesReviewExactlyOnce(t *testing.T) {
	provider := &scriptedProvider{responses: []types.Response{
		protectedCallResponse(),
		textResponse("done"),
	}}
	engine := newTestEngine(t, provider, nil)
	ctx := context.Background()

	registry := NewRegistry(WithProtectedTools([]string{"send_campaign_email"}))
	sess, _ := registry.Open(ctx, "s1")
	if _, err := sess.Turn(ctx, engine, "send it", nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	if _, err := sess.Resume(ctx, engine, graph.ReviewDecision{Action: graph.ReviewContinue}, nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if sess.Suspended() {
		t.Fatal("review must be consumed")
	}
	if _, err := sess.Resume(ctx, engine, graph.ReviewDecision{Action: graph.ReviewContinue}, nil); !errors.Is(err, ErrNoPendingReview) {
		t.Fatalf("err = %v, want ErrNoPendingReview", err)
	}
}

func TestSession_ResumeWithoutSuspensionFails(t *testing.T) {
	registry := NewRegistry()
	sess, _ := registry.Open(context.Background(), "s1")
	engine := newTestEngine(t, &scriptedProvider{}, nil)

	_, err := sess.Resume(context.Background(), engine, graph.ReviewDecision{Action: graph.ReviewContinue}, nil)
	if !errors.Is(err, ErrNoPendingReview) {
		t.Fatalf("err = %v, want ErrNoPendingReview", err)
	}
}

func TestRegistry_CloseDiscardsPendingReview(t *testing.T) {
	provider := &scriptedProvider{responses: []types.Response{protectedCallResponse()}}
	engine := newTestEngine(t, provider, nil)
	ctx := context.Background()

	registry := NewRegistry(WithProtectedTools([]string{"send_campaign_email"}))
	sess, _ := registry.Open(ctx, "s1")
	if _, err := sess.Turn(ctx, engine, "send it", nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if err := registry.Close(ctx, "s1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := registry.Get("s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after close = %v", err)
	}
	if sess.PendingReview() != nil {
		t.Fatal("close must discard the pending review")
	}
}

func TestRegistry_ListReportsSuspension(t *testing.T) {
	provider := &scriptedProvider{responses: []types.Response{protectedCallResponse()}}
	engine := newTestEngine(t, provider, nil)
	ctx := context.Background()

	registry := NewRegistry(WithProtectedTools([]string{"send_campaign_email"}))
	sess, _ := registry.Open(ctx, "s1")
	if _, err := registry.Open(ctx, "s2"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := sess.Turn(ctx, engine, "send it", nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	infos := registry.List()
	if len(infos) != 2 {
		t.Fatalf("List = %d entries", len(infos))
	}
	for _, info := range infos {
		wantSuspended := info.SessionID == "s1"
		if info.Suspended != wantSuspended {
			t.Fatalf("session %s suspended = %v", info.SessionID, info.Suspended)
		}
	}
}
