// Package stream converts the execution graph's internal turn events
// into the ordered client-visible event protocol.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bandhan-ai/ralph/graph"
	"github.com/bandhan-ai/ralph/types"
)

// Event is one outbound protocol frame. Fields are populated per type:
// typing carries status, message_chunk/message carry content and
// is_complete, tool_call carries tool_name and args, approval_request
// carries data and interrupt_id, error carries message.
type Event struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	IsComplete  *bool  `json:"is_complete,omitempty"`
	Status      *bool  `json:"status,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	Args        string `json:"args,omitempty"`
	Message     string `json:"message,omitempty"`
	Data        any    `json:"data,omitempty"`
	InterruptID string `json:"interrupt_id,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func now() string { return time.Now().Format(time.RFC3339Nano) }

func boolPtr(b bool) *bool { return &b }

func Typing(status bool) Event {
	return Event{Type: "typing", Status: boolPtr(status), Timestamp: now()}
}

func Chunk(content string) Event {
	return Event{Type: "message_chunk", Content: content, IsComplete: boolPtr(false), Timestamp: now()}
}

func FinalMessage(content string) Event {
	return Event{Type: "message", Content: content, IsComplete: boolPtr(true), Timestamp: now()}
}

func ToolCall(name, args string) Event {
	return Event{Type: "tool_call", ToolName: name, Args: args, Timestamp: now()}
}

func UserMessage(content string) Event {
	return Event{Type: "user_message", Content: content, Timestamp: now()}
}

func Pong() Event {
	return Event{Type: "pong", Timestamp: now()}
}

func ErrorEvent(message string) Event {
	return Event{Type: "error", Message: message, Timestamp: now()}
}

// ApprovalPayload is the data block of an approval_request frame.
type ApprovalPayload struct {
	Message  string          `json:"message"`
	ToolCall types.ToolCall  `json:"tool_call"`
	ToolName string          `json:"tool_name"`
	ToolArgs json.RawMessage `json:"tool_args"`
}

// ApprovalRequest wraps a review suspension for the client. interrupt_id
// is fresh per suspension and used for client correlation only; resumes
// are keyed by session.
func ApprovalRequest(review *graph.PendingReview) Event {
	return Event{
		Type: "approval_request",
		Data: ApprovalPayload{
			Message:  review.Prompt,
			ToolCall: review.Call,
			ToolName: review.Call.Name,
			ToolArgs: review.Call.Arguments,
		},
		InterruptID: uuid.NewString(),
		Timestamp:   now(),
	}
}

// SendFunc delivers one outbound frame. It is called from a single
// session lane, in order.
type SendFunc func(Event)

// Translator carries the per-turn text buffer and tool-call fragment
// accumulators. It is stateless across turns; Begin resets it.
type Translator struct {
	send   SendFunc
	buffer strings.Builder
	calls  map[int]*callFragment
}

type callFragment struct {
	name string
	args strings.Builder
}

func NewTranslator(send SendFunc) *Translator {
	if send == nil {
		send = func(Event) {}
	}
	return &Translator{send: send, calls: map[int]*callFragment{}}
}

// Begin opens a turn: resets per-turn state and announces typing.
func (t *Translator) Begin() {
	t.buffer.Reset()
	t.calls = map[int]*callFragment{}
	t.send(Typing(true))
}

// EmitFunc adapts the translator to the graph's event callback.
func (t *Translator) EmitFunc() graph.EmitFunc {
	return t.Handle
}

// Handle translates one internal turn event. Text deltas stream out
// immediately and also accumulate in the buffer; when a tool call starts
// arriving the buffer is flushed first, since the protocol cannot
// interleave prose after tool-call content within one assistant message.
func (t *Translator) Handle(ev graph.TurnEvent) {
	switch ev.Kind {
	case graph.TurnText:
		t.buffer.WriteString(ev.Text)
		t.send(Chunk(ev.Text))

	case graph.TurnToolCallChunk:
		t.flushBuffer()
		frag := t.calls[ev.ToolChunk.Index]
		if frag == nil {
			frag = &callFragment{}
			t.calls[ev.ToolChunk.Index] = frag
		}
		if ev.ToolChunk.Name != "" {
			frag.name = ev.ToolChunk.Name
		}
		frag.args.WriteString(ev.ToolChunk.Arguments)
		if frag.name != "" {
			t.send(ToolCall(frag.name, frag.args.String()))
		}

	case graph.TurnToolResult:
		// Tool results feed the next assistant round; they are not part
		// of the client protocol.

	case graph.TurnInterrupt:
		t.finishText()
		t.send(Typing(false))
		t.send(ApprovalRequest(ev.Review))

	case graph.TurnDone:
		t.finishText()
		t.send(Typing(false))

	case graph.TurnError:
		t.send(ErrorEvent(fmt.Sprintf("Agent error: %v", ev.Err)))
		t.send(Typing(false))
	}
}

// flushBuffer emits any buffered text as an incomplete chunk and clears
// the buffer.
func (t *Translator) flushBuffer() {
	if strings.TrimSpace(t.buffer.String()) == "" {
		t.buffer.Reset()
		return
	}
	t.send(Chunk(t.buffer.String()))
	t.buffer.Reset()
}

// finishText emits remaining buffered text as the complete final message.
func (t *Translator) finishText() {
	if strings.TrimSpace(t.buffer.String()) != "" {
		t.send(FinalMessage(t.buffer.String()))
	}
	t.buffer.Reset()
}
