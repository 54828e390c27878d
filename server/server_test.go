package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bandhan-ai/ralph/graph"
	"github.com/bandhan-ai/ralph/internal/logging"
	"github.com/bandhan-ai/ralph/llm"
	"github.com/bandhan-ai/ralph/session"
	"github.com/bandhan-ai/ralph/stream"
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

func testServer(t *testing.T, provider llm.Provider) (*Server, *httptest.Server) {
	t.Helper()
	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewFuncTool("send_campaign_email", "send", nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			_ = ctx
			_ = args
			return "sent", nil
		}))
	registry.Protect("send_campaign_email")

	engine, err := graph.NewEngine(provider, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	sessions := session.NewRegistry(session.WithProtectedTools([]string{"send_campaign_email"}))
	log := logging.New(io.Discard, "silent")
	srv := New(sessions, engine, log, WithGreeting("Hello! I'm Ralph, your CRM assistant. How can I help you today?"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /sessions", srv.handleSessions)
	mux.HandleFunc("/ws/{session_id}", srv.handleWebSocket)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) stream.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev stream.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestWebSocket_GreetingAndTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []types.Response{
		{Message: types.Message{Content: "The top region is the North."}},
	}}
	_, ts := testServer(t, provider)
	conn := dial(t, ts, "s1")

	greeting := readEvent(t, conn)
	if greeting.Type != "message" || !strings.Contains(greeting.Content, "Ralph") {
		t.Fatalf("greeting = %+v", greeting)
	}

	if err := conn.WriteJSON(map[string]any{"type": "message", "content": "top region?"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var sequence []string
	for {
		ev := readEvent(t, conn)
		sequence = append(sequence, ev.Type)
		if ev.Type == "typing" && ev.Status != nil && !*ev.Status {
			break
		}
	}
	want := []string{"user_message", "typing", "message_chunk", "message", "typing"}
	if len(sequence) != len(want) {
		t.Fatalf("sequence = %v, want %v", sequence, want)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", sequence, want)
		}
	}
}

func TestWebSocket_ApprovalFlow(t *testing.T) {
	provider := &scriptedProvider{responses: []types.Response{
		{Message: types.Message{ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "send_campaign_email", Arguments: json.RawMessage(`{"customer_id":7}`)},
		}}},
		{Message: types.Message{Content: "Done."}},
	}}
	_, ts := testServer(t, provider)
	conn := dial(t, ts, "s1")
	readEvent(t, conn) // greeting

	if err := conn.WriteJSON(map[string]any{"type": "message", "content": "send it"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var approval stream.Event
	for {
		ev := readEvent(t, conn)
		if ev.Type == "approval_request" {
			approval = ev
			break
		}
	}
	if approval.InterruptID == "" {
		t.Fatal("approval_request must carry interrupt_id")
	}

	if err := conn.WriteJSON(map[string]any{
		"type":   "approval_response",
		"action": "continue",
	}); err != nil {
		t.Fatalf("write approval: %v", err)
	}

	sawFinal := false
	for {
		ev := readEvent(t, conn)
		if ev.Type == "message" && ev.Content == "Done." {
			sawFinal = true
		}
		if ev.Type == "typing" && ev.Status != nil && !*ev.Status {
			break
		}
	}
	if !sawFinal {
		t.Fatal("resumed turn did not deliver the final message")
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, ts := testServer(t, &scriptedProvider{})
	conn := dial(t, ts, "s1")
	readEvent(t, conn) // greeting

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != "pong" || ev.Timestamp == "" {
		t.Fatalf("ev = %+v", ev)
	}
}

func TestHealthAndSessions(t *testing.T) {
	srv, ts := testServer(t, &scriptedProvider{})
	conn := dial(t, ts, "s1")
	readEvent(t, conn) // greeting; connection now registered

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["status"] != "healthy" {
		t.Fatalf("health = %v", health)
	}
	if health["active_sessions"] != float64(1) {
		t.Fatalf("active_sessions = %v", health["active_sessions"])
	}

	resp, err = http.Get(ts.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	defer resp.Body.Close()
	var listing struct {
		ActiveSessions map[string]struct {
			CreatedAt string `json:"created_at"`
			YoloMode  bool   `json:"yolo_mode"`
			Connected bool   `json:"connected"`
		} `json:"active_sessions"`
		TotalSessions int `json:"total_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listing.TotalSessions != 1 {
		t.Fatalf("total_sessions = %d", listing.TotalSessions)
	}
	info, ok := listing.ActiveSessions["s1"]
	if !ok || !info.Connected {
		t.Fatalf("listing = %+v", listing)
	}
	_ = srv
}
