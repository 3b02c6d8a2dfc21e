package api

import (
	"errors"
	"net/http"

	"reportanalyzer/internal/incident"
	"reportanalyzer/internal/store"
)

type deletedBody struct {
	Status string `json:"status"`
}

var deleted = deletedBody{Status: "deleted"}

func (h *Handler) listPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.store.ListPrompts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if prompts == nil {
		prompts = []incident.Prompt{}
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (h *Handler) createPrompt(w http.ResponseWriter, r *http.Request) {
	var in incident.Prompt
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.store.CreatePrompt(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) updatePrompt(w http.ResponseWriter, r *http.Request) {
	var patch store.PromptPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	out, err := h.store.UpdatePrompt(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) deletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeletePrompt(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, deleted)
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ListIncidentTypes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if types == nil {
		types = []incident.Type{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request) {
	var in incident.Type
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.store.CreateIncidentType(r.Context(), in)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusBadRequest, "Code already exists")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) updateType(w http.ResponseWriter, r *http.Request) {
	var patch store.TypePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	out, err := h.store.UpdateIncidentType(r.Context(), r.PathValue("code"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, out)
}

// deleteType also removes the type's questions.
func (h *Handler) deleteType(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteIncidentType(r.Context(), r.PathValue("code")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, deleted)
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.store.ListQuestions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if questions == nil {
		questions = []incident.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) createQuestion(w http.ResponseWriter, r *http.Request) {
	in := incident.Question{Required: true}
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.store.CreateQuestion(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var patch store.QuestionPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	out, err := h.store.UpdateQuestion(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteQuestion(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate()
	writeJSON(w, http.StatusOK, deleted)
}
