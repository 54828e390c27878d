package graph

import "github.com/bandhan-ai/ralph/types"

// TurnEventKind enumerates the internal event stream produced while a
// turn executes. The streaming translator converts these into the
// client-visible protocol.
type TurnEventKind string

const (
	// TurnText carries one incremental span of assistant text.
	TurnText TurnEventKind = "text"
	// TurnToolCallChunk carries a partial tool invocation fragment.
	TurnToolCallChunk TurnEventKind = "tool_call_chunk"
	// TurnToolResult carries one committed tool-result message.
	TurnToolResult TurnEventKind = "tool_result"
	// TurnInterrupt announces a human-review suspension.
	TurnInterrupt TurnEventKind = "interrupt"
	// TurnDone closes a turn that reached the terminal state.
	TurnDone TurnEventKind = "done"
	// TurnError reports a fatal failure of the current turn.
	TurnError TurnEventKind = "error"
)

type TurnEvent struct {
	Kind      TurnEventKind
	Text      string
	ToolChunk *types.ToolCallChunk
	Result    *types.Message
	Review    *PendingReview
	Err       error
}

// EmitFunc receives turn events in the exact order the state machine
// produces them. It is called from the session's execution lane only.
type EmitFunc func(TurnEvent)
