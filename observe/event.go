package observe

import "time"

type Kind string

type Status string

const (
	KindTurn       Kind = "turn"
	KindNode       Kind = "node"
	KindTool       Kind = "tool"
	KindReview     Kind = "review"
	KindCheckpoint Kind = "checkpoint"
	KindCustom     Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Event struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"sessionId,omitempty"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
