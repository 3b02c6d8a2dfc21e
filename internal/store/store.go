// Package store persists reports, incidents, answers, run records and the
// administrative registries.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reportanalyzer/internal/incident"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: already exists")
	ErrInvalid  = errors.New("store: invalid input")
)

// Store is implemented by SQLStore and MemoryStore.
type Store interface {
	// Analysis writes.
	CreateReport(ctx context.Context, r incident.Report) (incident.Report, error)
	CreateIncidents(ctx context.Context, reportID string, codes []string) ([]incident.Matched, error)
	CreateRun(ctx context.Context, run incident.RunRecord) (incident.RunRecord, error)
	SaveAnswers(ctx context.Context, answers []incident.Answer) error
	SaveFinalReport(ctx context.Context, fr incident.FinalReport) (incident.FinalReport, error)

	// Registry reads.
	ListIncidentTypes(ctx context.Context) ([]incident.Type, error)
	ListQuestions(ctx context.Context) ([]incident.Question, error)
	TemplateSet(ctx context.Context, version string) (incident.TemplateSet, error)

	// Registry administration.
	CreateIncidentType(ctx context.Context, t incident.Type) (incident.Type, error)
	UpdateIncidentType(ctx context.Context, code string, p TypePatch) (incident.Type, error)
	DeleteIncidentType(ctx context.Context, code string) error
	CreateQuestion(ctx context.Context, q incident.Question) (incident.Question, error)
	UpdateQuestion(ctx context.Context, id string, p QuestionPatch) (incident.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
	ListPrompts(ctx context.Context) ([]incident.Prompt, error)
	CreatePrompt(ctx context.Context, p incident.Prompt) (incident.Prompt, error)
	UpdatePrompt(ctx context.Context, id string, p PromptPatch) (incident.Prompt, error)
	DeletePrompt(ctx context.Context, id string) error

	// Audit reads.
	ListRuns(ctx context.Context, limit int) ([]incident.RunRecord, error)
	RecentReports(ctx context.Context, limit int) ([]ReportBundle, error)

	Ping(ctx context.Context) error
	Close() error
}

// TypePatch updates the non-nil fields of an incident type.
type TypePatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PromptRef   *string `json:"prompt_ref"`
}

// QuestionPatch updates the non-nil fields of a question.
type QuestionPatch struct {
	Label      *string `json:"label"`
	Key        *string `json:"question_key"`
	AnswerType *string `json:"answer_type"`
	Required   *bool   `json:"required"`
	Order      *int    `json:"order_index"`
}

// PromptPatch updates the non-nil fields of a prompt fragment.
type PromptPatch struct {
	Name       *string `json:"name"`
	Purpose    *string `json:"purpose"`
	Content    *string `json:"content"`
	VersionTag *string `json:"version_tag"`
}

// ReportBundle is a stored report with everything derived from it.
type ReportBundle struct {
	Report    incident.Report
	Incidents []incident.Matched
	Answers   []incident.Answer
	Final     *incident.FinalReport
}

const (
	DefaultRunsLimit    = 50
	DefaultHistoryLimit = 20
	maxLimit            = 500
)

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func applyTypePatch(t *incident.Type, p TypePatch) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.PromptRef != nil {
		t.PromptRef = *p.PromptRef
	}
}

func applyQuestionPatch(q *incident.Question, p QuestionPatch) {
	if p.Label != nil {
		q.Label = *p.Label
	}
	if p.Key != nil {
		q.Key = strings.TrimSpace(*p.Key)
	}
	if p.AnswerType != nil {
		q.AnswerType = *p.AnswerType
	}
	if p.Required != nil {
		q.Required = *p.Required
	}
	if p.Order != nil {
		q.Order = *p.Order
	}
}

func applyPromptPatch(pr *incident.Prompt, p PromptPatch) {
	if p.Name != nil {
		pr.Name = strings.TrimSpace(*p.Name)
	}
	if p.Purpose != nil {
		pr.Purpose = *p.Purpose
	}
	if p.Content != nil {
		pr.Content = *p.Content
	}
	if p.VersionTag != nil {
		pr.VersionTag = strings.TrimSpace(*p.VersionTag)
	}
}

func normalizeType(t incident.Type) (incident.Type, error) {
	t.Code = incident.NormalizeKey(t.Code)
	t.Name = strings.TrimSpace(t.Name)
	if t.Code == "" || t.Name == "" {
		return t, fmt.Errorf("%w: code and name are required", ErrInvalid)
	}
	return t, nil
}

func normalizeQuestion(q incident.Question) (incident.Question, error) {
	q.IncidentType = incident.NormalizeKey(q.IncidentType)
	q.Key = strings.TrimSpace(q.Key)
	q.Label = strings.TrimSpace(q.Label)
	if q.AnswerType == "" {
		q.AnswerType = "text"
	}
	if q.IncidentType == "" || q.Key == "" || q.Label == "" {
		return q, fmt.Errorf("%w: incident_type, question_key and label are required", ErrInvalid)
	}
	return q, nil
}

func normalizePrompt(p incident.Prompt) (incident.Prompt, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.VersionTag = strings.TrimSpace(p.VersionTag)
	if p.VersionTag == "" {
		p.VersionTag = incident.DefaultVersionTag
	}
	if p.Name == "" {
		return p, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return p, nil
}
