package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	llmclient "reportanalyzer/internal/llm/client"
)

// base forwards the non-generating methods to next.
type base struct{ next llmclient.Client }

func (b base) Name() string  { return b.next.Name() }
func (b base) Model() string { return b.next.Model() }
func (b base) Close() error  { return b.next.Close() }

// -------- Logging & Hooks --------

// WithLogging logs request size, latency and errors. A nil logger uses zap.L().
func WithLogging(logger *zap.Logger) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		l := logger
		if l == nil {
			l = zap.L()
		}
		return &logging{base: base{next}, log: l}
	}
}

type logging struct {
	base
	log *zap.Logger
}

func (l *logging) Generate(ctx context.Context, prompt string) (llmclient.Generation, error) {
	phase := PhaseFrom(ctx)
	l.log.Debug("llm: request",
		zap.String("phase", phase),
		zap.String("model", l.next.Name()),
		zap.Int("bytes", len(prompt)))
	start := time.Now()
	gen, err := l.next.Generate(ctx, prompt)
	if err != nil {
		l.log.Error("llm: call failed",
			zap.String("phase", phase),
			zap.String("model", l.next.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return gen, err
	}
	l.log.Info("llm: call done",
		zap.String("phase", phase),
		zap.String("model", l.next.Name()),
		zap.Int64("latency_ms", gen.Latency.Milliseconds()),
		zap.Int("response_bytes", len(gen.Text)))
	return gen, nil
}

// WithHooks calls HookFrom(ctx).Before/After around Generate.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return func(next llmclient.Client) llmclient.Client {
		return &hooked{base: base{next}}
	}
}

type hooked struct{ base }

func (h *hooked) Generate(ctx context.Context, prompt string) (llmclient.Generation, error) {
	hook := HookFrom(ctx)
	if hook != nil {
		hook.Before(ctx, PhaseFrom(ctx), prompt)
	}
	gen, err := h.next.Generate(ctx, prompt)
	if hook != nil {
		hook.After(ctx, PhaseFrom(ctx), gen, err)
	}
	return gen, err
}

// -------- Concurrency gate --------

// Concurrency bounds the number of in-flight calls across all callers of the
// returned client. n <= 0 disables the gate.
func Concurrency(n int) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if n <= 0 {
			return next
		}
		return &gated{base: base{next}, sem: make(chan struct{}, n)}
	}
}

type gated struct {
	base
	sem chan struct{}
}

func (g *gated) Generate(ctx context.Context, prompt string) (llmclient.Generation, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return llmclient.Generation{}, llmclient.Unavailable(ctx.Err())
	}
	defer func() { <-g.sem }()
	return g.next.Generate(ctx, prompt)
}

// -------- Rate limiting --------

// RateLimit spaces calls to rps per second with the given burst. Fractional
// rates are allowed. rps <= 0 disables the limiter; burst <= 0 means 1.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		return &rateLimited{base: base{next}, lim: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	base
	lim *rate.Limiter
}

func (c *rateLimited) Generate(ctx context.Context, prompt string) (llmclient.Generation, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return llmclient.Generation{}, llmclient.Unavailable(err)
	}
	return c.next.Generate(ctx, prompt)
}
