package api

import (
	"context"
	"net/http"

	"reportanalyzer/internal/pipeline"
)

// analyze runs the pipeline for one report. The run is detached from the
// request context so a client disconnect does not cut the audit trail short.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	res, err := h.analyzer.AnalyzeObserved(ctx, req, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
