package state

import "time"

type SessionRecord struct {
	SessionID   string     `json:"sessionId"`
	AutoApprove bool       `json:"autoApprove"`
	Status      string     `json:"status,omitempty"` // active, suspended, closed
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// CheckpointRecord is one snapshot of a session's agent state. Seq
// increases monotonically within a session; saving a duplicate seq
// returns ErrConflict.
type CheckpointRecord struct {
	SessionID string         `json:"sessionId"`
	Seq       int            `json:"seq"`
	NodeID    string         `json:"nodeId"`
	State     map[string]any `json:"state,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
