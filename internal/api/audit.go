package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"reportanalyzer/internal/archive"
	"reportanalyzer/internal/incident"
	"reportanalyzer/internal/store"
	"reportanalyzer/internal/textmetrics"
)

const (
	healthTimeout = 3 * time.Second
	previewRunes  = 60
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("api: health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) llmPing(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		writeError(w, http.StatusBadGateway, "Ollama nicht erreichbar")
		return
	}
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.log.Warn("api: model ping failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Ollama nicht erreichbar")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ollama": "ok"})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, store.DefaultRunsLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []incident.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type historyResult struct {
	Classification []string          `json:"classification"`
	Facts          map[string]string `json:"facts"`
	FinalReport    *string           `json:"final_report"`
}

type historyEntry struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Date       time.Time     `json:"date"`
	Preview    string        `json:"preview"`
	FullText   string        `json:"full_text"`
	ResultData historyResult `json:"result_data"`
}

func newHistoryEntry(b store.ReportBundle) historyEntry {
	res := historyResult{
		Classification: make([]string, 0, len(b.Incidents)),
		Facts:          make(map[string]string, len(b.Answers)),
	}
	for _, inc := range b.Incidents {
		res.Classification = append(res.Classification, inc.IncidentType)
	}
	for _, a := range b.Answers {
		label := a.Label
		if label == "" {
			label = a.QuestionKey
		}
		res.Facts[label] = a.Text
	}
	if b.Final != nil {
		body := b.Final.Body
		res.FinalReport = &body
	}
	return historyEntry{
		ID:         b.Report.ID,
		Title:      b.Report.DisplayTitle(),
		Date:       b.Report.CreatedAt,
		Preview:    preview(b.Report.Body),
		FullText:   b.Report.Body,
		ResultData: res,
	}
}

func preview(body string) string {
	if body == "" {
		return ""
	}
	rs := []rune(body)
	if len(rs) > previewRunes {
		rs = rs[:previewRunes]
	}
	return string(rs) + "..."
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, store.DefaultHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	bundles, err := h.store.RecentReports(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]historyEntry, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, newHistoryEntry(b))
	}
	writeJSON(w, http.StatusOK, out)
}

type archiveEntry struct {
	ID          string   `json:"id"`
	Folder      string   `json:"folder"`
	Files       []string `json:"files"`
	FinalReport string   `json:"final_report"`
}

func (h *Handler) archived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}
	id := r.PathValue("id")
	body, err := h.archive.FinalReport(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	files, err := h.archive.Files(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveEntry{
		ID:          id,
		Folder:      archive.Folder(id),
		Files:       files,
		FinalReport: body,
	})
}

type compareRequest struct {
	Text1    string `json:"text1"`
	Text2    string `json:"text2"`
	AutoJunk *bool  `json:"autojunk"`
}

func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts := textmetrics.Options{AutoJunk: true}
	if req.AutoJunk != nil {
		opts.AutoJunk = *req.AutoJunk
	}
	ratio := textmetrics.RatioWith(req.Text1, req.Text2, opts)
	writeJSON(w, http.StatusOK, map[string]float64{"similarity_ratio": ratio})
}
