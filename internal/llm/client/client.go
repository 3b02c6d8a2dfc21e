package llmclient

import (
	"context"
	"encoding/json"
	"time"
)

// Client is a text generation endpoint. Every provider classifies its
// transport failures into UpstreamHTTPError or UpstreamUnavailableError.
type Client interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string) (Generation, error)
	Close() error
}

// Pinger is implemented by providers that can check endpoint reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Generation is the result of one successful call.
type Generation struct {
	Text string
	// Raw is the provider's full response body.
	Raw              json.RawMessage
	PromptTokens     *int
	CompletionTokens *int
	Latency          time.Duration
}
