// Package llm decorates model clients with cross-cutting concerns: logging,
// hooks, concurrency limits, rate limiting and retries.
package llm

import (
	llmclient "reportanalyzer/internal/llm/client"
)

// Middleware decorates a Client.
type Middleware func(llmclient.Client) llmclient.Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.Client, mws ...Middleware) llmclient.Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		out = mws[i](out)
	}
	return out
}
