// Package seed ships the default taxonomy, question bank and template set
// and writes them into a store.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"reportanalyzer/internal/incident"
	"reportanalyzer/internal/registry"
	"reportanalyzer/internal/store"
)

//go:embed default.yaml
var defaultYAML []byte

// Data is the content of a seed file.
type Data struct {
	Version   string        `yaml:"version"`
	Types     []typeDoc     `yaml:"types"`
	Questions []questionDoc `yaml:"questions"`
	Prompts   []promptDoc   `yaml:"prompts"`
}

type typeDoc struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	PromptRef   string `yaml:"prompt_ref"`
}

type questionDoc struct {
	IncidentType string `yaml:"incident_type"`
	Key          string `yaml:"question_key"`
	Label        string `yaml:"label"`
	AnswerType   string `yaml:"answer_type"`
	Required     *bool  `yaml:"required"`
	Order        int    `yaml:"order_index"`
}

type promptDoc struct {
	Name    string `yaml:"name"`
	Purpose string `yaml:"purpose"`
	Content string `yaml:"content"`
}

// Default returns the embedded seed.
func Default() (*Data, error) {
	return Parse(defaultYAML)
}

// Load reads a seed file from disk. An empty path selects the embedded seed.
func Load(path string) (*Data, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read seed %s", path)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, eris.Wrap(err, "parse seed yaml")
	}
	if d.Version == "" {
		d.Version = incident.DefaultVersionTag
	}
	return &d, nil
}

func (d *Data) IncidentTypes() []incident.Type {
	out := make([]incident.Type, 0, len(d.Types))
	for _, t := range d.Types {
		out = append(out, incident.Type{
			Code:        incident.NormalizeKey(t.Code),
			Name:        t.Name,
			Description: t.Description,
			PromptRef:   t.PromptRef,
		})
	}
	return out
}

// QuestionBank returns the seeded questions. Required defaults to true.
func (d *Data) QuestionBank() []incident.Question {
	out := make([]incident.Question, 0, len(d.Questions))
	for _, q := range d.Questions {
		required := true
		if q.Required != nil {
			required = *q.Required
		}
		answerType := q.AnswerType
		if answerType == "" {
			answerType = "text"
		}
		out = append(out, incident.Question{
			IncidentType: incident.NormalizeKey(q.IncidentType),
			Key:          q.Key,
			Label:        q.Label,
			AnswerType:   answerType,
			Required:     required,
			Order:        q.Order,
		})
	}
	return out
}

func (d *Data) Templates() incident.TemplateSet {
	set := incident.TemplateSet{Version: d.Version, Fragments: make(map[string]string, len(d.Prompts))}
	for _, p := range d.Prompts {
		set.Fragments[p.Name] = p.Content
	}
	return set
}

// Fallback is the registry snapshot used when the store cannot be read.
// Questions are left out.
func (d *Data) Fallback() registry.Snapshot {
	return registry.Snapshot{
		Types:     d.IncidentTypes(),
		Templates: d.Templates(),
		Fallback:  true,
	}
}

// Writer is the part of the store seeding needs.
type Writer interface {
	CreateIncidentType(ctx context.Context, t incident.Type) (incident.Type, error)
	CreateQuestion(ctx context.Context, q incident.Question) (incident.Question, error)
	CreatePrompt(ctx context.Context, p incident.Prompt) (incident.Prompt, error)
}

// Summary counts rows written and rows that already existed.
type Summary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Apply writes the seed into w. Existing rows are left untouched, so Apply
// can run on every start.
func Apply(ctx context.Context, w Writer, d *Data, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.L()
	}
	var sum Summary
	count := func(err error, what string) error {
		switch {
		case err == nil:
			sum.Created++
		case errors.Is(err, store.ErrConflict):
			sum.Skipped++
		default:
			return eris.Wrapf(err, "seed %s", what)
		}
		return nil
	}

	for _, t := range d.IncidentTypes() {
		_, err := w.CreateIncidentType(ctx, t)
		if err := count(err, "incident type "+t.Code); err != nil {
			return sum, err
		}
	}
	for _, q := range d.QuestionBank() {
		_, err := w.CreateQuestion(ctx, q)
		if err := count(err, "question "+q.IncidentType+"/"+q.Key); err != nil {
			return sum, err
		}
	}
	for _, p := range d.Prompts {
		_, err := w.CreatePrompt(ctx, incident.Prompt{Name: p.Name, Purpose: p.Purpose, Content: p.Content, VersionTag: d.Version})
		if err := count(err, "prompt "+p.Name); err != nil {
			return sum, err
		}
	}
	log.Info("seed: applied",
		zap.String("version", d.Version),
		zap.Int("created", sum.Created),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}
