package llm

import (
	"context"
	"errors"

	"github.com/bandhan-ai/ralph/types"
)

var ErrNotSupported = errors.New("operation not supported by provider")

type Capabilities struct {
	Tools     bool
	Streaming bool
}

type Provider interface {
	Name() string
	Capabilities() Capabilities
	Generate(ctx context.Context, req types.Request) (types.Response, error)
}

// StreamingProvider is implemented by providers that can deliver the
// assistant message incrementally. onChunk is called for every text delta
// and tool-call fragment in arrival order; the returned Response carries
// the complete assembled message.
type StreamingProvider interface {
	Provider
	GenerateStream(ctx context.Context, req types.Request, onChunk func(types.StreamChunk) error) (types.Response, error)
}
