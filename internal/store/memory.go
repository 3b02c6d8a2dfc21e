package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"reportanalyzer/internal/incident"
)

// MemoryStore keeps everything in process memory. It is used by tests and
// by local runs without a database.
type MemoryStore struct {
	mu sync.RWMutex

	reports   []incident.Report
	incidents []incident.Matched
	answers   []incident.Answer
	runs      []incident.RunRecord
	finals    []incident.FinalReport

	types     map[string]incident.Type
	questions []incident.Question
	prompts   []incident.Prompt

	now func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		types: make(map[string]incident.Type),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

func (m *MemoryStore) CreateReport(_ context.Context, r incident.Report) (incident.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = newID()
	r.CreatedAt = m.now()
	if r.Language == "" {
		r.Language = "de"
	}
	m.reports = append(m.reports, r)
	return r, nil
}

func (m *MemoryStore) CreateIncidents(_ context.Context, reportID string, codes []string) ([]incident.Matched, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasReport(reportID) {
		return nil, ErrNotFound
	}
	out := make([]incident.Matched, 0, len(codes))
	for _, code := range codes {
		inc := incident.Matched{ID: newID(), ReportID: reportID, IncidentType: code, Status: "new"}
		out = append(out, inc)
	}
	m.incidents = append(m.incidents, out...)
	return out, nil
}

func (m *MemoryStore) hasReport(id string) bool {
	for _, r := range m.reports {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateRun(_ context.Context, run incident.RunRecord) (incident.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = newID()
	run.CreatedAt = m.now()
	m.runs = append(m.runs, run)
	return run, nil
}

// SaveAnswers stores all answers or none.
func (m *MemoryStore) SaveAnswers(_ context.Context, answers []incident.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[string]struct{}, len(m.incidents))
	for _, inc := range m.incidents {
		known[inc.ID] = struct{}{}
	}
	for _, a := range answers {
		if _, ok := known[a.IncidentID]; !ok {
			return ErrNotFound
		}
	}
	m.answers = append(m.answers, answers...)
	return nil
}

func (m *MemoryStore) SaveFinalReport(_ context.Context, fr incident.FinalReport) (incident.FinalReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr.ID = newID()
	fr.CreatedAt = m.now()
	m.finals = append(m.finals, fr)
	return fr, nil
}

func (m *MemoryStore) ListIncidentTypes(context.Context) ([]incident.Type, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]incident.Type, 0, len(m.types))
	for _, t := range m.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) ListQuestions(context.Context) ([]incident.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]incident.Question(nil), m.questions...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IncidentType != out[j].IncidentType {
			return out[i].IncidentType < out[j].IncidentType
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

// TemplateSet collects the prompts tagged with version. Later fragments with
// the same name win.
func (m *MemoryStore) TemplateSet(_ context.Context, version string) (incident.TemplateSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := incident.TemplateSet{Version: version, Fragments: map[string]string{}}
	for _, p := range m.prompts {
		if p.VersionTag == version {
			set.Fragments[p.Name] = p.Content
		}
	}
	return set, nil
}

func (m *MemoryStore) CreateIncidentType(_ context.Context, t incident.Type) (incident.Type, error) {
	t, err := normalizeType(t)
	if err != nil {
		return incident.Type{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[t.Code]; ok {
		return incident.Type{}, ErrConflict
	}
	t.CreatedAt = m.now()
	m.types[t.Code] = t
	return t, nil
}

func (m *MemoryStore) UpdateIncidentType(_ context.Context, code string, p TypePatch) (incident.Type, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = incident.NormalizeKey(code)
	t, ok := m.types[code]
	if !ok {
		return incident.Type{}, ErrNotFound
	}
	applyTypePatch(&t, p)
	m.types[code] = t
	return t, nil
}

// DeleteIncidentType removes the type and its questions.
func (m *MemoryStore) DeleteIncidentType(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = incident.NormalizeKey(code)
	if _, ok := m.types[code]; !ok {
		return ErrNotFound
	}
	delete(m.types, code)
	kept := m.questions[:0]
	for _, q := range m.questions {
		if q.IncidentType != code {
			kept = append(kept, q)
		}
	}
	m.questions = kept
	return nil
}

func (m *MemoryStore) CreateQuestion(_ context.Context, q incident.Question) (incident.Question, error) {
	q, err := normalizeQuestion(q)
	if err != nil {
		return incident.Question{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.questions {
		if ex.IncidentType == q.IncidentType && ex.Key == q.Key {
			return incident.Question{}, ErrConflict
		}
	}
	q.ID = newID()
	m.questions = append(m.questions, q)
	return q, nil
}

func (m *MemoryStore) UpdateQuestion(_ context.Context, id string, p QuestionPatch) (incident.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.questions {
		if q.ID != id {
			continue
		}
		applyQuestionPatch(&q, p)
		for j, ex := range m.questions {
			if j != i && ex.IncidentType == q.IncidentType && ex.Key == q.Key {
				return incident.Question{}, ErrConflict
			}
		}
		m.questions[i] = q
		return q, nil
	}
	return incident.Question{}, ErrNotFound
}

func (m *MemoryStore) DeleteQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.questions {
		if q.ID == id {
			m.questions = append(m.questions[:i], m.questions[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ListPrompts(context.Context) ([]incident.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]incident.Prompt(nil), m.prompts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VersionTag != out[j].VersionTag {
			return out[i].VersionTag < out[j].VersionTag
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryStore) CreatePrompt(_ context.Context, p incident.Prompt) (incident.Prompt, error) {
	p, err := normalizePrompt(p)
	if err != nil {
		return incident.Prompt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.prompts {
		if ex.Name == p.Name && ex.VersionTag == p.VersionTag {
			return incident.Prompt{}, ErrConflict
		}
	}
	p.ID = newID()
	p.CreatedAt = m.now()
	m.prompts = append(m.prompts, p)
	return p, nil
}

func (m *MemoryStore) UpdatePrompt(_ context.Context, id string, patch PromptPatch) (incident.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.prompts {
		if p.ID != id {
			continue
		}
		applyPromptPatch(&p, patch)
		for j, ex := range m.prompts {
			if j != i && ex.Name == p.Name && ex.VersionTag == p.VersionTag {
				return incident.Prompt{}, ErrConflict
			}
		}
		m.prompts[i] = p
		return p, nil
	}
	return incident.Prompt{}, ErrNotFound
}

func (m *MemoryStore) DeletePrompt(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.prompts {
		if p.ID == id {
			m.prompts = append(m.prompts[:i], m.prompts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListRuns returns the newest runs first.
func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]incident.RunRecord, error) {
	limit = clampLimit(limit, DefaultRunsLimit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]incident.RunRecord, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

// RecentReports returns the newest reports first.
func (m *MemoryStore) RecentReports(_ context.Context, limit int) ([]ReportBundle, error) {
	limit = clampLimit(limit, DefaultHistoryLimit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReportBundle, 0, limit)
	for i := len(m.reports) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.reports[i]
		b := ReportBundle{Report: r}
		ids := map[string]struct{}{}
		for _, inc := range m.incidents {
			if inc.ReportID == r.ID {
				b.Incidents = append(b.Incidents, inc)
				ids[inc.ID] = struct{}{}
			}
		}
		for _, a := range m.answers {
			if _, ok := ids[a.IncidentID]; ok {
				b.Answers = append(b.Answers, a)
			}
		}
		for _, fr := range m.finals {
			if _, ok := ids[fr.IncidentID]; ok {
				fr := fr
				b.Final = &fr
				break
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// Counts reports the number of stored rows per table, keyed by table name.
func (m *MemoryStore) Counts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"raw_reports":        len(m.reports),
		"incidents":          len(m.incidents),
		"structured_answers": len(m.answers),
		"llm_runs":           len(m.runs),
		"final_reports":      len(m.finals),
	}
}

// Runs returns all run records in insertion order.
func (m *MemoryStore) Runs() []incident.RunRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]incident.RunRecord(nil), m.runs...)
}

// Answers returns all answers in insertion order.
func (m *MemoryStore) Answers() []incident.Answer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]incident.Answer(nil), m.answers...)
}

var _ Store = (*MemoryStore)(nil)
