package types

import "encoding/json"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolResultStatus marks how a tool call was answered.
type ToolResultStatus string

const (
	ToolResultOK       ToolResultStatus = "ok"
	ToolResultError    ToolResultStatus = "error"
	ToolResultFeedback ToolResultStatus = "feedback"
)

// Message is one turn in a conversation transcript. The transcript is
// append-only; ID is assigned once when the message is appended and is
// used to deduplicate streamed deltas against committed messages.
type Message struct {
	ID         string           `json:"id,omitempty"`
	Role       Role             `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"` // Tool name for tool role messages.
	ToolCallID string           `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall       `json:"toolCalls,omitempty"`
	Status     ToolResultStatus `json:"status,omitempty"`
}

type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	JSONSchema  map[string]any `json:"jsonSchema,omitempty"`
}

type Request struct {
	Model           string           `json:"model,omitempty"`
	SystemPrompt    string           `json:"systemPrompt,omitempty"`
	Messages        []Message        `json:"messages"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	MaxOutputTokens int              `json:"maxOutputTokens,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
	TotalTokens  int `json:"totalTokens,omitempty"`
}

type Response struct {
	Message Message `json:"message"`
	Usage   *Usage  `json:"usage,omitempty"`
}

// ToolCallChunk is a partial tool invocation as it arrives from the model.
// Name may be empty until the fragment carrying it is received; Arguments
// holds the argument text received so far for this fragment. Index groups
// fragments belonging to the same call within one assistant turn.
type ToolCallChunk struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type StreamChunk struct {
	Text     string         `json:"text,omitempty"`
	ToolCall *ToolCallChunk `json:"toolCall,omitempty"`
	Done     bool           `json:"done,omitempty"`
}
