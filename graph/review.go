package graph

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/bandhan-ai/ralph/types"
)

const reviewPrompt = "Your input is required for the following tool:"

// PendingReview is the suspension token produced when the graph halts
// for human input. It is created at suspension and consumed exactly once
// by the matching resume decision; a session holds at most one.
type PendingReview struct {
	ID        string         `json:"id"`
	Prompt    string         `json:"prompt"`
	Call      types.ToolCall `json:"toolCall"`
	MessageID string         `json:"messageId"`
}

// newPendingReview builds the suspension token from the last tool-call
// request in the assistant's message; when several calls are present in
// one turn, the last request wins.
func newPendingReview(msg types.Message) *PendingReview {
	call := msg.ToolCalls[len(msg.ToolCalls)-1]
	return &PendingReview{
		ID:        uuid.NewString(),
		Prompt:    reviewPrompt,
		Call:      call,
		MessageID: msg.ID,
	}
}

type ReviewAction string

const (
	ReviewContinue ReviewAction = "continue"
	ReviewUpdate   ReviewAction = "update"
	ReviewFeedback ReviewAction = "feedback"
)

// ReviewDecision is the resume input for a suspended session. Data is the
// raw decision payload: replacement arguments for update, feedback text
// for feedback.
type ReviewDecision struct {
	Action ReviewAction    `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// updateArgs extracts replacement tool-call arguments from the decision
// payload. A JSON string payload is unwrapped and re-parsed; if the inner
// text is not valid JSON the raw payload is used as-is.
func (d ReviewDecision) updateArgs() json.RawMessage {
	if len(d.Data) == 0 {
		return json.RawMessage(`{}`)
	}
	var inner string
	if err := json.Unmarshal(d.Data, &inner); err == nil {
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner)
		}
		return d.Data
	}
	return d.Data
}

// feedbackText extracts the human feedback from the decision payload.
func (d ReviewDecision) feedbackText() string {
	if len(d.Data) == 0 {
		return "Human provided feedback instead of executing tool"
	}
	var inner string
	if err := json.Unmarshal(d.Data, &inner); err == nil {
		if strings.TrimSpace(inner) != "" {
			return inner
		}
		return "Human provided feedback instead of executing tool"
	}
	return string(d.Data)
}
