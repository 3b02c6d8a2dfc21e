package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"reportanalyzer/internal/archive"
	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/pipeline"
	"reportanalyzer/internal/registry"
	"reportanalyzer/internal/store"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusFor maps an error to the HTTP status and the detail shown to the
// caller.
func statusFor(err error) (int, string) {
	var (
		inputErr *pipeline.ClientInputError
		cfgErr   *registry.ConfigError
		httpErr  *llmclient.UpstreamHTTPError
		unavErr  *llmclient.UpstreamUnavailableError
	)
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, inputErr.Msg
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, cfgErr.Error()
	case errors.As(err, &httpErr):
		return http.StatusBadGateway, "LLM Fehler: " + httpErr.Error()
	case errors.As(err, &unavErr):
		if unavErr.Timeout() {
			return http.StatusGatewayTimeout, "LLM Zeitüberschreitung: " + unavErr.Error()
		}
		return http.StatusServiceUnavailable, "LLM nicht erreichbar: " + unavErr.Error()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "Already exists"
	case errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	log := h.log.With(zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		log.Error("api: request failed", zap.Error(err))
	} else {
		log.Info("api: request rejected", zap.Error(err))
	}
	writeError(w, status, detail)
}

// queryLimit reads ?limit=, returning def when absent.
func queryLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
