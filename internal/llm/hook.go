package llm

import (
	"context"

	llmclient "reportanalyzer/internal/llm/client"
)

// CallHook observes every model call made with a context carrying it.
type CallHook interface {
	Before(ctx context.Context, phase, prompt string)
	After(ctx context.Context, phase string, gen llmclient.Generation, err error)
}

type ctxKeyHook struct{}
type ctxKeyPhase struct{}

// WithPhase tags ctx with the purpose of the next model call.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase stored in the context.
func PhaseFrom(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyPhase{}).(string); ok {
		return s
	}
	return "unknown"
}

// ContextWithHook attaches hook to ctx. WithHooks calls it around Generate.
func ContextWithHook(ctx context.Context, hook CallHook) context.Context {
	if hook == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyHook{}, hook)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) CallHook {
	if h, ok := ctx.Value(ctxKeyHook{}).(CallHook); ok {
		return h
	}
	return nil
}
