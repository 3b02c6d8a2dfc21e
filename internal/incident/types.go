package incident

import (
	"encoding/json"
	"strings"
	"time"
)

// UnknownCode is the incident type attached to a report when no registered
// type could be matched.
const UnknownCode = "unknown"

// Purpose tags a single model invocation.
type Purpose string

const (
	PurposeClassify         Purpose = "classify"
	PurposeExtractAnswer    Purpose = "extract_answer"
	PurposeWriteFinalReport Purpose = "write_final_report"
)

// Type is one entry of the incident taxonomy.
type Type struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PromptRef   string    `json:"prompt_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Question is one entry of the question bank.
type Question struct {
	ID           string `json:"id"`
	IncidentType string `json:"incident_type"`
	Key          string `json:"question_key"`
	Label        string `json:"label"`
	AnswerType   string `json:"answer_type"`
	Required     bool   `json:"required"`
	Order        int    `json:"order_index"`
}

// Prompt is a stored template fragment. Fragments sharing a version tag form
// a TemplateSet.
type Prompt struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Purpose    string    `json:"purpose"`
	Content    string    `json:"content"`
	VersionTag string    `json:"version_tag"`
	CreatedAt  time.Time `json:"created_at"`
}

// Template slot names.
const (
	SlotBase          = "base_prompt"
	SlotTask          = "task_prompt_incident_classification"
	SlotCategoryIntro = "category_intro_prompt"
	SlotClassifyRules = "classify_rules_prompt"
	SlotInfo          = "info_prompt"
	DefaultVersionTag = "v1"
	untitledReport    = "Unbenannter Bericht"
)

// RequiredSlots must be present in every template set used for
// classification.
var RequiredSlots = []string{SlotBase, SlotCategoryIntro, SlotClassifyRules, SlotInfo}

// TemplateSet maps slot names to template text for one version.
type TemplateSet struct {
	Version   string            `json:"version"`
	Fragments map[string]string `json:"fragments"`
}

// Get returns the fragment for name, or "" when the slot is absent.
func (t TemplateSet) Get(name string) string {
	if t.Fragments == nil {
		return ""
	}
	return t.Fragments[name]
}

// Missing lists the required slots absent from the set.
func (t TemplateSet) Missing() []string {
	var out []string
	for _, slot := range RequiredSlots {
		if _, ok := t.Fragments[slot]; !ok {
			out = append(out, slot)
		}
	}
	return out
}

// Report is the raw free-text submission.
type Report struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	Language  string    `json:"language"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayTitle returns the title or the placeholder used for untitled
// reports.
func (r Report) DisplayTitle() string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	return untitledReport
}

// Matched is an incident row created for one matched type.
type Matched struct {
	ID           string `json:"id"`
	ReportID     string `json:"report_id"`
	IncidentType string `json:"incident_type"`
	Status       string `json:"status"`
}

// Answer is the model's answer to one question for one incident.
type Answer struct {
	IncidentID   string `json:"incident_id"`
	IncidentType string `json:"incident_type"`
	QuestionKey  string `json:"question_key"`
	Label        string `json:"label,omitempty"`
	Text         string `json:"text"`
	Failed       bool   `json:"failed,omitempty"`
}

// RunRecord audits exactly one model invocation.
type RunRecord struct {
	ID               string          `json:"id"`
	Purpose          Purpose         `json:"purpose"`
	ModelName        string          `json:"model_name"`
	ReportID         string          `json:"report_id,omitempty"`
	IncidentID       string          `json:"incident_id,omitempty"`
	Request          json.RawMessage `json:"request_json,omitempty"`
	Response         json.RawMessage `json:"response_json,omitempty"`
	TokensPrompt     *int            `json:"tokens_prompt"`
	TokensCompletion *int            `json:"tokens_completion"`
	LatencyMS        int64           `json:"latency_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}

// FinalReport is the synthesized narrative attached to the primary incident.
type FinalReport struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Body       string    `json:"body_md"`
	ModelName  string    `json:"model_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// NormalizeKey lower-cases and trims s for name/code comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
