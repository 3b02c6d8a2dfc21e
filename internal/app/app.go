// Package app wires configuration, storage, the model client and the HTTP
// surface into one process.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"reportanalyzer/internal/api"
	"reportanalyzer/internal/config"
	"reportanalyzer/internal/llm"
	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/pipeline"
	"reportanalyzer/internal/registry"
	"reportanalyzer/internal/seed"
	"reportanalyzer/internal/store"
)

// App holds the long-lived handles of one process.
type App struct {
	Config   *config.Config
	Store    store.Store
	Registry *registry.Snapshotter
	Client   llmclient.Client
	// Pinger is the unwrapped provider, used for reachability checks.
	Pinger   llmclient.Pinger
	Pipeline *pipeline.Pipeline
	Server   *api.Server

	log *zap.Logger
}

// New builds every component from cfg. On error, whatever was opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	if log == nil {
		log = zap.L()
	}
	a := &App{Config: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Store, err = OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	data, err := loadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	if cfg.SeedOnStart {
		sum, err := seed.Apply(ctx, a.Store, data, log)
		if err != nil {
			return nil, err
		}
		log.Info("app: seed applied", zap.Int("created", sum.Created), zap.Int("skipped", sum.Skipped))
	}

	a.Registry = registry.New(a.Store, registry.Options{
		Version:  cfg.Registry.Version,
		Timeout:  cfg.Registry.Timeout,
		TTL:      cfg.Registry.CacheTTL,
		Fallback: data.Fallback(),
		Logger:   log,
	})

	raw, err := NewModelClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	if p, ok := raw.(llmclient.Pinger); ok {
		a.Pinger = p
	}
	a.Client = WrapClient(raw, cfg.LLM, log)
	log.Info("app: model client ready", zap.String("client", raw.Name()), zap.String("model", raw.Model()))

	archiver, err := OpenArchive(cfg.Archive, log)
	if err != nil {
		return nil, err
	}

	pd := pipeline.Deps{
		Store:    a.Store,
		Registry: a.Registry,
		Client:   a.Client,
		Logger:   log,
	}
	ad := api.Deps{
		Store:          a.Store,
		Registry:       a.Registry,
		Pinger:         a.Pinger,
		Logger:         log,
		AllowedOrigins: cfg.CORSOrigins,
	}
	// Keep the interfaces nil when the archive is disabled.
	if archiver != nil {
		pd.Archive = archiver
		ad.Archive = archiver
	}
	a.Pipeline = pipeline.New(pd)
	ad.Analyzer = a.Pipeline

	a.Server = api.NewServer(cfg.Port, api.NewHandler(ad).Routes(), log)
	return a, nil
}

func loadSeed(path string) (*seed.Data, error) {
	if strings.TrimSpace(path) == "" {
		return seed.Default()
	}
	return seed.Load(path)
}

// NewModelClient returns the bare provider selected by cfg.Provider.
func NewModelClient(ctx context.Context, cfg config.LLMConfig) (llmclient.Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		return llmclient.NewOllamaClient(llmclient.OllamaConfig{
			BaseURL:    cfg.OllamaBaseURL,
			Model:      cfg.OllamaModel,
			Timeout:    cfg.Timeout,
			NumPredict: cfg.NumPredict,
		}), nil
	case "gemini":
		c, err := llmclient.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Timeout)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		return c, nil
	case "fake":
		return llm.NewFakeClient(cfg.FakeClassification), nil
	default:
		return nil, eris.Errorf("app: unknown LLM provider %q", cfg.Provider)
	}
}

// WrapClient applies hooks, logging, retry, the concurrency gate and the
// rate limit, outermost first.
func WrapClient(raw llmclient.Client, cfg config.LLMConfig, log *zap.Logger) llmclient.Client {
	return llm.Wrap(raw,
		llm.WithHooks(),
		llm.WithLogging(log),
		llm.Retry(cfg.MaxAttempts, cfg.RetryBackoff),
		llm.Concurrency(cfg.MaxConcurrency),
		llm.RateLimit(cfg.RPS, cfg.Burst),
	)
}

// Close releases the model client and the store.
func (a *App) Close() error {
	var errs []error
	if a.Client != nil {
		errs = append(errs, a.Client.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
