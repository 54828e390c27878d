// Package session tracks live agent sessions: one entry per session id,
// each with a single execution lane, an agent state, and at most one
// pending human review.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bandhan-ai/ralph/graph"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnInFlight    = errors.New("a turn is already in flight for this session")
	ErrReviewPending   = errors.New("session is awaiting a review decision")
	ErrNoPendingReview = errors.New("session has no pending review")
)

// Session is one live conversation. All turn execution for a session
// happens on a single lane: BeginTurn/BeginResume claim the lane and
// EndTurn releases it, so the engine never sees concurrent mutation of
// the same AgentState.
type Session struct {
	ID          string
	AutoApprove bool
	CreatedAt   time.Time

	mu       sync.Mutex
	state    *graph.AgentState
	review   *graph.PendingReview
	inFlight bool
	closed   bool
}

// BeginTurn claims the execution lane for a fresh human turn. It fails
// when a turn is already running or when a review decision is still
// owed.
func (s *Session) BeginTurn() (*graph.AgentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	if s.inFlight {
		return nil, ErrTurnInFlight
	}
	if s.review != nil {
		return nil, ErrReviewPending
	}
	s.inFlight = true
	return s.state, nil
}

// BeginResume claims the lane to consume the pending review. The token
// is detached immediately so a second resume for the same suspension
// fails with ErrNoPendingReview.
func (s *Session) BeginResume() (*graph.AgentState, *graph.PendingReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionNotFound
	}
	if s.inFlight {
		return nil, nil, ErrTurnInFlight
	}
	if s.review == nil {
		return nil, nil, ErrNoPendingReview
	}
	review := s.review
	s.review = nil
	s.inFlight = true
	return s.state, review, nil
}

// EndTurn releases the lane. When the turn suspended, the review token
// is parked on the session until a resume consumes it.
func (s *Session) EndTurn(result graph.TurnResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if result.Suspended {
		s.review = result.Review
	}
}

// PendingReview reports the parked review token, if any.
func (s *Session) PendingReview() *graph.PendingReview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.review
}

// Suspended reports whether the session is waiting on a review decision.
func (s *Session) Suspended() bool {
	return s.PendingReview() != nil
}

func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.review = nil
	s.inFlight = false
}

// Turn runs one full human turn on the session's lane.
func (s *Session) Turn(ctx context.Context, engine *graph.Engine, input string, emit graph.EmitFunc) (graph.TurnResult, error) {
	st, err := s.BeginTurn()
	if err != nil {
		return graph.TurnResult{}, err
	}
	result, err := engine.RunTurn(ctx, s.ID, st, input, emit)
	s.EndTurn(result)
	return result, err
}

// Resume consumes the pending review on the session's lane. The token is
// spent even when the resumed run fails; the transcript already absorbed
// the decision.
func (s *Session) Resume(ctx context.Context, engine *graph.Engine, decision graph.ReviewDecision, emit graph.EmitFunc) (graph.TurnResult, error) {
	st, review, err := s.BeginResume()
	if err != nil {
		return graph.TurnResult{}, err
	}
	result, err := engine.Resume(ctx, s.ID, st, review, decision, emit)
	s.EndTurn(result)
	return result, err
}
