// Package api exposes the analysis pipeline and the registry administration
// over HTTP.
package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/pipeline"
	"reportanalyzer/internal/store"
)

// Analyzer runs one analysis.
type Analyzer interface {
	AnalyzeObserved(ctx context.Context, req pipeline.Request, obs pipeline.Observer) (*pipeline.Result, error)
}

// ArchiveReader reads back archived analyses.
type ArchiveReader interface {
	FinalReport(ctx context.Context, reportID string) (string, error)
	Files(ctx context.Context, reportID string) ([]string, error)
}

// Invalidator drops cached registry snapshots after admin writes.
type Invalidator interface {
	Invalidate()
}

type Deps struct {
	Analyzer Analyzer
	Store    store.Store
	Registry Invalidator
	// Pinger checks the model endpoint; nil reports it unreachable.
	Pinger llmclient.Pinger
	// Archive is optional; without it archive lookups answer 404.
	Archive        ArchiveReader
	Logger         *zap.Logger
	AllowedOrigins []string
}

type Handler struct {
	analyzer Analyzer
	store    store.Store
	registry Invalidator
	pinger   llmclient.Pinger
	archive  ArchiveReader
	log      *zap.Logger
	origins  []string
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.L()
	}
	return &Handler{
		analyzer: d.Analyzer,
		store:    d.Store,
		registry: d.Registry,
		pinger:   d.Pinger,
		archive:  d.Archive,
		log:      d.Logger,
		origins:  d.AllowedOrigins,
	}
}

// Routes returns the full HTTP surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/llm/ping", h.llmPing)
	mux.HandleFunc("POST /api/llm/analyze", h.analyze)
	mux.HandleFunc("GET /api/llm/analyze/ws", h.analyzeStream)

	mux.HandleFunc("GET /api/prompts/{$}", h.listPrompts)
	mux.HandleFunc("POST /api/prompts/{$}", h.createPrompt)
	mux.HandleFunc("PUT /api/prompts/{id}", h.updatePrompt)
	mux.HandleFunc("DELETE /api/prompts/{id}", h.deletePrompt)

	mux.HandleFunc("GET /api/config/types", h.listTypes)
	mux.HandleFunc("POST /api/config/types", h.createType)
	mux.HandleFunc("PUT /api/config/types/{code}", h.updateType)
	mux.HandleFunc("DELETE /api/config/types/{code}", h.deleteType)

	mux.HandleFunc("GET /api/config/questions", h.listQuestions)
	mux.HandleFunc("POST /api/config/questions", h.createQuestion)
	mux.HandleFunc("PUT /api/config/questions/{id}", h.updateQuestion)
	mux.HandleFunc("DELETE /api/config/questions/{id}", h.deleteQuestion)

	mux.HandleFunc("GET /api/logs/runs", h.listRuns)
	mux.HandleFunc("GET /api/reports/history", h.history)
	mux.HandleFunc("GET /api/reports/{id}/archive", h.archived)
	mux.HandleFunc("POST /api/metrics/compare", h.compare)

	return CORS(h.origins)(mux)
}

func (h *Handler) invalidate() {
	if h.registry != nil {
		h.registry.Invalidate()
	}
}
