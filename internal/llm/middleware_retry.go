package llm

import (
	"context"
	"errors"
	"time"

	llmclient "reportanalyzer/internal/llm/client"
)

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. Only UpstreamUnavailableError is retried: an HTTP error
// status from the endpoint is returned immediately. maxAttempts <= 1 returns
// next unchanged.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.Client) llmclient.Client {
		if maxAttempts <= 1 {
			return next
		}
		return &retrying{base: base{next}, max: maxAttempts, delay: baseDelay}
	}
}

type retrying struct {
	base
	max   int
	delay time.Duration
}

func (r *retrying) Generate(ctx context.Context, prompt string) (llmclient.Generation, error) {
	var last error
	for i := 0; i < r.max; i++ {
		gen, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return gen, nil
		}
		last = err
		var unavail *llmclient.UpstreamUnavailableError
		if !errors.As(err, &unavail) {
			return gen, err
		}
		if i == r.max-1 {
			break
		}
		select {
		case <-ctx.Done():
			return llmclient.Generation{}, last
		case <-time.After(r.delay * time.Duration(1<<i)):
		}
	}
	return llmclient.Generation{}, last
}
