package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/bandhan-ai/ralph/types"
)

// Registry holds the callable tools for one deployment plus the set of
// protected tool names. It is safe for concurrent use; registration
// normally happens once at startup and lookups happen on every turn.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	order     []string
	protected map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     map[string]Tool{},
		protected: map[string]bool{},
	}
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is required")
	}
	name := strings.TrimSpace(tool.Definition().Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Protect marks tool names as requiring human approval. Names that are
// not (yet) registered are accepted; membership is checked by name only.
func (r *Registry) Protect(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			r.protected[n] = true
		}
	}
}

func (r *Registry) IsProtected(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.protected[name]
}

func (r *Registry) Protected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.protected))
	for n := range r.protected {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns tool definitions in registration order.
func (r *Registry) List() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition())
	}
	return out
}

// Invoke resolves and executes one tool call and always returns a tool
// message answering it. Failures (unknown tool, schema violation, or
// execution error) are folded into an error-status message so the
// conversation can continue.
func (r *Registry) Invoke(ctx context.Context, call types.ToolCall) types.Message {
	msg := types.Message{
		Role:       types.RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Status:     types.ToolResultOK,
	}

	tool, ok := r.Resolve(call.Name)
	if !ok {
		msg.Status = types.ToolResultError
		msg.Content = fmt.Sprintf("unknown tool %q", call.Name)
		return msg
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validateArgs(tool.Definition(), args); err != nil {
		msg.Status = types.ToolResultError
		msg.Content = err.Error()
		return msg
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		msg.Status = types.ToolResultError
		msg.Content = err.Error()
		return msg
	}

	switch v := result.(type) {
	case string:
		msg.Content = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			msg.Status = types.ToolResultError
			msg.Content = fmt.Sprintf("tool %q returned unencodable result: %v", call.Name, err)
			return msg
		}
		msg.Content = string(raw)
	}
	return msg
}

func validateArgs(def types.ToolDefinition, args json.RawMessage) error {
	if len(def.JSONSchema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def.JSONSchema),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		return fmt.Errorf("invalid arguments for tool %q: %w", def.Name, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return fmt.Errorf("invalid arguments for tool %q: %s", def.Name, strings.Join(issues, "; "))
	}
	return nil
}
