package graph

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/bandhan-ai/ralph/types"
)

// DefaultProtectedTools are the sensitive marketing actions that require
// human approval unless auto-approve is enabled.
var DefaultProtectedTools = []string{"create_campaign", "send_campaign_email"}

// AgentState is the conversation transcript plus run configuration for
// one session. It is owned exclusively by that session's engine lane;
// the transcript is append-only and never reordered.
type AgentState struct {
	Messages       []types.Message `json:"messages"`
	ProtectedTools []string        `json:"protectedTools"`
	AutoApprove    bool            `json:"autoApprove"`
	Seq            int             `json:"seq"` // checkpoint sequence counter
}

func NewAgentState(protectedTools []string, autoApprove bool) *AgentState {
	if protectedTools == nil {
		protectedTools = append([]string(nil), DefaultProtectedTools...)
	}
	return &AgentState{
		ProtectedTools: protectedTools,
		AutoApprove:    autoApprove,
	}
}

// Append adds a message to the transcript, assigning an id if the
// message does not carry one, and returns the stored message.
func (s *AgentState) Append(msg types.Message) types.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.Messages = append(s.Messages, msg)
	return msg
}

func (s *AgentState) LastMessage() (types.Message, bool) {
	if len(s.Messages) == 0 {
		return types.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s *AgentState) isProtected(name string) bool {
	for _, t := range s.ProtectedTools {
		if t == name {
			return true
		}
	}
	return false
}

// UpdateToolCallArgs replaces the arguments of one tool call in place,
// preserving the call id and tool name. Used when a human review returns
// an update decision.
func (s *AgentState) UpdateToolCallArgs(messageID, callID string, args json.RawMessage) error {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].ID != messageID {
			continue
		}
		for j := range s.Messages[i].ToolCalls {
			if s.Messages[i].ToolCalls[j].ID == callID {
				s.Messages[i].ToolCalls[j].Arguments = args
				return nil
			}
		}
		return fmt.Errorf("tool call %q not found in message %q", callID, messageID)
	}
	return fmt.Errorf("message %q not found", messageID)
}

type checkpointSnapshot struct {
	State      AgentState `json:"state"`
	NextNodeID string     `json:"nextNodeId,omitempty"`
}

func (s *AgentState) snapshot(nextNodeID string) (map[string]any, error) {
	payload := checkpointSnapshot{State: *s, NextNodeID: nextNodeID}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint snapshot: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint snapshot map: %w", err)
	}
	return out, nil
}

// RestoreAgentState rebuilds an AgentState from a checkpoint snapshot.
// The router recomputes its decision from the transcript tail, so
// restoring the transcript is sufficient.
func RestoreAgentState(raw map[string]any) (*AgentState, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("checkpoint state is empty")
	}
	payloadRaw, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}
	var snapshot checkpointSnapshot
	if err := json.Unmarshal(payloadRaw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint state: %w", err)
	}
	restored := snapshot.State
	return &restored, nil
}
