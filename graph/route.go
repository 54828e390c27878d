package graph

import "github.com/bandhan-ai/ralph/types"

// Route names the next node after inspecting the transcript tail.
type Route string

const (
	RouteAssistant Route = "assistant"
	RouteTools     Route = "tools"
	RouteReview    Route = "human_review"
	RouteEnd       Route = "end"
)

// callClass classifies the tool-call shape of an assistant message.
type callClass int

const (
	callsNone callClass = iota
	callsUnprotected
	callsProtected
)

func classifyCalls(state *AgentState, msg types.Message) callClass {
	if len(msg.ToolCalls) == 0 {
		return callsNone
	}
	for _, call := range msg.ToolCalls {
		if state.isProtected(call.Name) {
			return callsProtected
		}
	}
	return callsUnprotected
}

// Decide is the router: a pure function over the transcript tail and the
// run configuration. It holds no memory, so resuming after a suspension
// never requires replaying history.
func Decide(state *AgentState) Route {
	last, ok := state.LastMessage()
	if !ok {
		return RouteEnd
	}
	switch last.Role {
	case types.RoleUser, types.RoleTool:
		return RouteAssistant
	case types.RoleAssistant:
		switch classifyCalls(state, last) {
		case callsNone:
			return RouteEnd
		case callsProtected:
			if state.AutoApprove {
				return RouteTools
			}
			return RouteReview
		default:
			return RouteTools
		}
	default:
		return RouteEnd
	}
}
