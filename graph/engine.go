// Package graph is the interruptible agent execution core: a per-session
// state machine that streams model output, detects protected tool calls,
// suspends for human review, and resumes with the reviewer's decision
// folded into the transcript.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bandhan-ai/ralph/llm"
	"github.com/bandhan-ai/ralph/observe"
	"github.com/bandhan-ai/ralph/state"
	"github.com/bandhan-ai/ralph/tools"
	"github.com/bandhan-ai/ralph/types"
)

const defaultMaxRounds = 10

// Engine drives the Assistant → Router → {Tools, HumanReview, End} cycle
// for agent states it is handed. The engine itself holds no per-session
// state; everything a turn needs lives in the AgentState, which is why a
// suspended session can resume after a process restart as long as the
// transcript tail is intact.
type Engine struct {
	provider     llm.Provider
	registry     *tools.Registry
	store        state.Store
	observer     observe.Sink
	systemPrompt string
	maxRounds    int
	retryPolicy  RetryPolicy
}

type Option func(*Engine)

func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.systemPrompt = prompt }
}

func WithMaxRounds(max int) Option {
	return func(e *Engine) {
		if max > 0 {
			e.maxRounds = max
		}
	}
}

func WithStore(store state.Store) Option {
	return func(e *Engine) { e.store = store }
}

func WithObserver(observer observe.Sink) Option {
	return func(e *Engine) { e.observer = observer }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(e *Engine) { e.retryPolicy = normalizeRetryPolicy(policy) }
}

func NewEngine(provider llm.Provider, registry *tools.Registry, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	e := &Engine{
		provider:    provider,
		registry:    registry,
		maxRounds:   defaultMaxRounds,
		retryPolicy: defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.retryPolicy = normalizeRetryPolicy(e.retryPolicy)
	return e, nil
}

// TurnResult reports how a turn ended: terminated with a final assistant
// message, or suspended awaiting a review decision.
type TurnResult struct {
	Suspended bool
	Review    *PendingReview
	Output    string
	Rounds    int
}

// RunTurn appends the human message and drives the state machine until
// the turn terminates or suspends. Events are emitted in machine order.
func (e *Engine) RunTurn(ctx context.Context, sessionID string, st *AgentState, input string, emit EmitFunc) (TurnResult, error) {
	if st == nil {
		return TurnResult{}, errors.New("agent state is required")
	}
	if emit == nil {
		emit = func(TurnEvent) {}
	}

	st.Append(types.Message{Role: types.RoleUser, Content: input})
	e.checkpoint(ctx, sessionID, st, "user", string(RouteAssistant))
	e.emitObserve(ctx, observe.Event{
		SessionID: sessionID,
		Kind:      observe.KindTurn,
		Status:    observe.StatusStarted,
		Message:   "turn started",
	})
	return e.loop(ctx, sessionID, st, emit, 0)
}

// Resume consumes a pending review. The decision is folded into the
// transcript and routing continues from where the graph halted:
// continue/update execute the reviewed message's tool calls, feedback
// answers the reviewed call and hands control back to the assistant.
// Unrecognized actions fall back to continue.
func (e *Engine) Resume(ctx context.Context, sessionID string, st *AgentState, review *PendingReview, decision ReviewDecision, emit EmitFunc) (TurnResult, error) {
	if st == nil {
		return TurnResult{}, errors.New("agent state is required")
	}
	if review == nil {
		return TurnResult{}, errors.New("pending review is required")
	}
	if emit == nil {
		emit = func(TurnEvent) {}
	}

	e.emitObserve(ctx, observe.Event{
		SessionID: sessionID,
		Kind:      observe.KindReview,
		Status:    observe.StatusCompleted,
		ToolName:  review.Call.Name,
		Message:   string(decision.Action),
	})

	switch decision.Action {
	case ReviewFeedback:
		msg := types.Message{
			Role:       types.RoleTool,
			Name:       review.Call.Name,
			ToolCallID: review.Call.ID,
			Content:    decision.feedbackText(),
			Status:     types.ToolResultFeedback,
		}
		appended := st.Append(msg)
		emit(TurnEvent{Kind: TurnToolResult, Result: &appended})
		e.checkpoint(ctx, sessionID, st, string(RouteReview), string(RouteAssistant))
		return e.loop(ctx, sessionID, st, emit, 0)

	case ReviewUpdate:
		if err := st.UpdateToolCallArgs(review.MessageID, review.Call.ID, decision.updateArgs()); err != nil {
			turnErr := fmt.Errorf("failed to apply review update: %w", err)
			e.failTurn(ctx, sessionID, emit, turnErr)
			return TurnResult{}, turnErr
		}
		e.checkpoint(ctx, sessionID, st, string(RouteReview), string(RouteTools))
	default:
		// continue, and the documented fallback for anything unrecognized.
		e.checkpoint(ctx, sessionID, st, string(RouteReview), string(RouteTools))
	}

	e.executeTools(ctx, sessionID, st, emit)
	return e.loop(ctx, sessionID, st, emit, 0)
}

// loop recomputes the route from the transcript tail until the turn
// terminates or suspends. rounds counts assistant invocations within the
// current turn.
func (e *Engine) loop(ctx context.Context, sessionID string, st *AgentState, emit EmitFunc, rounds int) (TurnResult, error) {
	for {
		switch Decide(st) {
		case RouteAssistant:
			rounds++
			if rounds > e.maxRounds {
				turnErr := fmt.Errorf("max assistant rounds reached (%d)", e.maxRounds)
				e.failTurn(ctx, sessionID, emit, turnErr)
				return TurnResult{}, turnErr
			}
			msg, err := e.assistantStep(ctx, sessionID, st, emit)
			if err != nil {
				turnErr := fmt.Errorf("assistant step failed: %w", err)
				e.failTurn(ctx, sessionID, emit, turnErr)
				return TurnResult{}, turnErr
			}
			st.Append(msg)
			e.checkpoint(ctx, sessionID, st, string(RouteAssistant), string(Decide(st)))

		case RouteReview:
			last, _ := st.LastMessage()
			review := newPendingReview(last)
			e.checkpoint(ctx, sessionID, st, string(RouteReview), "")
			e.emitObserve(ctx, observe.Event{
				SessionID: sessionID,
				Kind:      observe.KindReview,
				Status:    observe.StatusSuspended,
				ToolName:  review.Call.Name,
				Message:   "awaiting human review",
			})
			emit(TurnEvent{Kind: TurnInterrupt, Review: review})
			return TurnResult{Suspended: true, Review: review, Rounds: rounds}, nil

		case RouteTools:
			e.executeTools(ctx, sessionID, st, emit)

		case RouteEnd:
			last, _ := st.LastMessage()
			emit(TurnEvent{Kind: TurnDone})
			e.emitObserve(ctx, observe.Event{
				SessionID: sessionID,
				Kind:      observe.KindTurn,
				Status:    observe.StatusCompleted,
				Message:   "turn completed",
			})
			return TurnResult{Output: last.Content, Rounds: rounds}, nil
		}
	}
}

// assistantStep produces exactly one assistant message. On failure no
// partial message is returned; the caller leaves the transcript unchanged
// so the next human turn starts from a consistent state.
func (e *Engine) assistantStep(ctx context.Context, sessionID string, st *AgentState, emit EmitFunc) (types.Message, error) {
	req := types.Request{
		SystemPrompt: e.systemPrompt,
		Messages:     st.Messages,
		Tools:        e.registry.List(),
	}

	e.emitObserve(ctx, observe.Event{
		SessionID: sessionID,
		Kind:      observe.KindNode,
		Status:    observe.StatusStarted,
		Name:      string(RouteAssistant),
	})

	resp, err := e.generate(ctx, req, emit)
	if err != nil {
		e.emitObserve(ctx, observe.Event{
			SessionID: sessionID,
			Kind:      observe.KindNode,
			Status:    observe.StatusFailed,
			Name:      string(RouteAssistant),
			Error:     err.Error(),
		})
		return types.Message{}, err
	}

	msg := resp.Message
	msg.Role = types.RoleAssistant
	e.emitObserve(ctx, observe.Event{
		SessionID: sessionID,
		Kind:      observe.KindNode,
		Status:    observe.StatusCompleted,
		Name:      string(RouteAssistant),
	})
	return msg, nil
}

func (e *Engine) generate(ctx context.Context, req types.Request, emit EmitFunc) (types.Response, error) {
	streaming, ok := e.provider.(llm.StreamingProvider)
	if ok && e.provider.Capabilities().Streaming {
		return e.generateStreamWithRetry(ctx, streaming, req, emit)
	}

	resp, err := e.generateWithRetry(ctx, req)
	if err != nil {
		return types.Response{}, err
	}
	// Surface the complete message through the same event stream the
	// streaming path uses so downstream translation is uniform.
	if resp.Message.Content != "" {
		emit(TurnEvent{Kind: TurnText, Text: resp.Message.Content})
	}
	for i, call := range resp.Message.ToolCalls {
		emit(TurnEvent{Kind: TurnToolCallChunk, ToolChunk: &types.ToolCallChunk{
			Index:     i,
			ID:        call.ID,
			Name:      call.Name,
			Arguments: string(call.Arguments),
		}})
	}
	return resp, nil
}

func (e *Engine) generateWithRetry(ctx context.Context, req types.Request) (types.Response, error) {
	policy := e.retryPolicy
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		resp, err := e.provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return types.Response{}, ctx.Err()
		case <-time.After(policy.backoffForAttempt(attempt)):
		}
	}
	return types.Response{}, fmt.Errorf("provider %q failed after %d attempt(s): %w", e.provider.Name(), policy.MaxAttempts, lastErr)
}

func (e *Engine) generateStreamWithRetry(ctx context.Context, provider llm.StreamingProvider, req types.Request, emit EmitFunc) (types.Response, error) {
	policy := e.retryPolicy
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		emitted := false
		resp, err := provider.GenerateStream(ctx, req, func(chunk types.StreamChunk) error {
			if chunk.Text != "" {
				emitted = true
				emit(TurnEvent{Kind: TurnText, Text: chunk.Text})
			}
			if chunk.ToolCall != nil {
				emitted = true
				emit(TurnEvent{Kind: TurnToolCallChunk, ToolChunk: chunk.ToolCall})
			}
			return nil
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		// Once deltas reached the client a silent retry would duplicate
		// them; surface the failure instead.
		if emitted || attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return types.Response{}, ctx.Err()
		case <-time.After(policy.backoffForAttempt(attempt)):
		}
	}
	return types.Response{}, fmt.Errorf("provider %q failed: %w", provider.Name(), lastErr)
}

// executeTools answers every tool-call request in the most recent
// assistant message. Invocation failures become error-status tool
// results; they never abort the turn.
func (e *Engine) executeTools(ctx context.Context, sessionID string, st *AgentState, emit EmitFunc) {
	last, ok := st.LastMessage()
	if !ok || last.Role != types.RoleAssistant {
		return
	}
	for _, call := range last.ToolCalls {
		e.emitObserve(ctx, observe.Event{
			SessionID: sessionID,
			Kind:      observe.KindTool,
			Status:    observe.StatusStarted,
			ToolName:  call.Name,
		})
		result := e.registry.Invoke(ctx, call)
		appended := st.Append(result)
		emit(TurnEvent{Kind: TurnToolResult, Result: &appended})

		status := observe.StatusCompleted
		errText := ""
		if result.Status == types.ToolResultError {
			status = observe.StatusFailed
			errText = result.Content
		}
		e.emitObserve(ctx, observe.Event{
			SessionID: sessionID,
			Kind:      observe.KindTool,
			Status:    status,
			ToolName:  call.Name,
			Error:     errText,
		})
	}
	e.checkpoint(ctx, sessionID, st, string(RouteTools), string(RouteAssistant))
}

func (e *Engine) failTurn(ctx context.Context, sessionID string, emit EmitFunc, err error) {
	emit(TurnEvent{Kind: TurnError, Err: err})
	e.emitObserve(ctx, observe.Event{
		SessionID: sessionID,
		Kind:      observe.KindTurn,
		Status:    observe.StatusFailed,
		Error:     err.Error(),
	})
}

func (e *Engine) checkpoint(ctx context.Context, sessionID string, st *AgentState, nodeID, nextNodeID string) {
	if e.store == nil {
		return
	}
	st.Seq++
	snapshot, err := st.snapshot(nextNodeID)
	if err != nil {
		return
	}
	err = e.store.SaveCheckpoint(ctx, state.CheckpointRecord{
		SessionID: sessionID,
		Seq:       st.Seq,
		NodeID:    nodeID,
		State:     snapshot,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, state.ErrConflict) {
		return
	}
	if err == nil {
		e.emitObserve(ctx, observe.Event{
			SessionID: sessionID,
			Kind:      observe.KindCheckpoint,
			Status:    observe.StatusCompleted,
			Name:      nodeID,
			Attributes: map[string]any{
				"seq":        st.Seq,
				"nextNodeId": nextNodeID,
			},
		})
	}
}

func (e *Engine) emitObserve(ctx context.Context, event observe.Event) {
	if e == nil || e.observer == nil {
		return
	}
	_ = e.observer.Emit(ctx, event)
}
