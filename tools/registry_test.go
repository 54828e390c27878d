package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bandhan-ai/ralph/types"
)

func echoTool(name string) Tool {
	return NewFuncTool(name, "echoes its args", nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			_ = ctx
			return string(args), nil
		})
}

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(echoTool("echo")); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"query", "create_campaign", "send_campaign_email"}
	for _, n := range names {
		r.MustRegister(echoTool(n))
	}
	defs := r.List()
	if len(defs) != len(names) {
		t.Fatalf("List = %d entries", len(defs))
	}
	for i, n := range names {
		if defs[i].Name != n {
			t.Fatalf("defs[%d] = %s, want %s", i, defs[i].Name, n)
		}
	}
}

func TestRegistry_Protect(t *testing.T) {
	r := NewRegistry()
	r.Protect("send_campaign_email", "  create_campaign ", "")
	if !r.IsProtected("send_campaign_email") || !r.IsProtected("create_campaign") {
		t.Fatal("protection not applied")
	}
	if r.IsProtected("query") {
		t.Fatal("query must not be protected")
	}
	got := r.Protected()
	want := []string{"create_campaign", "send_campaign_email"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Protected = %v", got)
	}
}

func TestInvoke_UnknownToolReturnsErrorMessage(t *testing.T) {
	r := NewRegistry()
	msg := r.Invoke(context.Background(), types.ToolCall{ID: "c1", Name: "missing"})
	if msg.Status != types.ToolResultError {
		t.Fatalf("status = %s", msg.Status)
	}
	if msg.ToolCallID != "c1" || msg.Name != "missing" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestInvoke_SchemaViolationReturnsErrorMessage(t *testing.T) {
	r := NewRegistry()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
		},
		"required": []string{"count"},
	}
	r.MustRegister(NewFuncTool("counted", "needs a count", schema,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			_ = ctx
			_ = args
			return "ok", nil
		}))

	msg := r.Invoke(context.Background(), types.ToolCall{
		Name:      "counted",
		Arguments: json.RawMessage(`{"count":"seven"}`),
	})
	if msg.Status != types.ToolResultError {
		t.Fatalf("status = %s, content = %q", msg.Status, msg.Content)
	}
}

func TestInvoke_ExecutionErrorReturnsErrorMessage(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFuncTool("fails", "always fails", nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			_ = ctx
			_ = args
			return nil, errors.New("boom")
		}))
	msg := r.Invoke(context.Background(), types.ToolCall{Name: "fails"})
	if msg.Status != types.ToolResultError || msg.Content != "boom" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestInvoke_MarshalsNonStringResults(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFuncTool("stats", "returns a map", nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			_ = ctx
			_ = args
			return map[string]any{"count": 2}, nil
		}))
	msg := r.Invoke(context.Background(), types.ToolCall{Name: "stats"})
	if msg.Status != types.ToolResultOK {
		t.Fatalf("status = %s", msg.Status)
	}
	if msg.Content != `{"count":2}` {
		t.Fatalf("content = %q", msg.Content)
	}
}

func TestInvoke_EmptyArgsDefaultToObject(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))
	msg := r.Invoke(context.Background(), types.ToolCall{Name: "echo"})
	if msg.Status != types.ToolResultOK || msg.Content != "{}" {
		t.Fatalf("message = %+v", msg)
	}
}
