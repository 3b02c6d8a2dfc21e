package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"reportanalyzer/internal/incident"
)

func (s *SQLStore) ListIncidentTypes(ctx context.Context) ([]incident.Type, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT code, name, description, prompt_ref, created_at
FROM incident_types
ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "query incident types")
	}
	defer rows.Close()

	var out []incident.Type
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanType(r rowScanner) (incident.Type, error) {
	var (
		t         incident.Type
		desc, ref sql.NullString
	)
	if err := r.Scan(&t.Code, &t.Name, &desc, &ref, &t.CreatedAt); err != nil {
		return incident.Type{}, err
	}
	t.Description = desc.String
	t.PromptRef = ref.String
	return t, nil
}

func (s *SQLStore) ListQuestions(ctx context.Context) ([]incident.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, incident_type, question_key, label, answer_type, required, order_index
FROM incident_questions
ORDER BY incident_type, order_index, question_key`)
	if err != nil {
		return nil, eris.Wrap(err, "query questions")
	}
	defer rows.Close()

	var out []incident.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuestion(r rowScanner) (incident.Question, error) {
	var q incident.Question
	err := r.Scan(&q.ID, &q.IncidentType, &q.Key, &q.Label, &q.AnswerType, &q.Required, &q.Order)
	return q, err
}

// TemplateSet collects the prompts tagged with version. Later fragments with
// the same name win.
func (s *SQLStore) TemplateSet(ctx context.Context, version string) (incident.TemplateSet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, content FROM prompts
WHERE version_tag = $1
ORDER BY created_at, id`, version)
	if err != nil {
		return incident.TemplateSet{}, eris.Wrap(err, "query prompts")
	}
	defer rows.Close()

	set := incident.TemplateSet{Version: version, Fragments: map[string]string{}}
	for rows.Next() {
		var name, content string
		if err := rows.Scan(&name, &content); err != nil {
			return incident.TemplateSet{}, eris.Wrap(err, "scan prompt")
		}
		set.Fragments[name] = content
	}
	return set, rows.Err()
}

func (s *SQLStore) CreateIncidentType(ctx context.Context, t incident.Type) (incident.Type, error) {
	t, err := normalizeType(t)
	if err != nil {
		return incident.Type{}, err
	}
	t.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO incident_types (code, name, description, prompt_ref, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (code) DO NOTHING`,
		t.Code, t.Name, nullString(t.Description), nullString(t.PromptRef), t.CreatedAt)
	if err != nil {
		return incident.Type{}, eris.Wrap(err, "insert incident type")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return incident.Type{}, ErrConflict
	}
	return t, nil
}

func (s *SQLStore) UpdateIncidentType(ctx context.Context, code string, p TypePatch) (incident.Type, error) {
	code = incident.NormalizeKey(code)
	t, err := scanType(s.db.QueryRowContext(ctx, `
SELECT code, name, description, prompt_ref, created_at
FROM incident_types WHERE code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return incident.Type{}, ErrNotFound
	}
	if err != nil {
		return incident.Type{}, eris.Wrap(err, "load incident type")
	}
	applyTypePatch(&t, p)
	_, err = s.db.ExecContext(ctx, `
UPDATE incident_types SET name = $2, description = $3, prompt_ref = $4
WHERE code = $1`,
		t.Code, t.Name, nullString(t.Description), nullString(t.PromptRef))
	if err != nil {
		return incident.Type{}, eris.Wrap(err, "update incident type")
	}
	return t, nil
}

// DeleteIncidentType removes the type and its questions.
func (s *SQLStore) DeleteIncidentType(ctx context.Context, code string) error {
	code = incident.NormalizeKey(code)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM incident_types WHERE code = $1`, code)
	if err != nil {
		return eris.Wrap(err, "delete incident type")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM incident_questions WHERE incident_type = $1`, code); err != nil {
		return eris.Wrap(err, "delete questions of type")
	}
	return eris.Wrap(tx.Commit(), "commit")
}

func (s *SQLStore) CreateQuestion(ctx context.Context, q incident.Question) (incident.Question, error) {
	q, err := normalizeQuestion(q)
	if err != nil {
		return incident.Question{}, err
	}
	q.ID = newID()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO incident_questions (id, incident_type, question_key, label, answer_type, required, order_index)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (incident_type, question_key) DO NOTHING`,
		q.ID, q.IncidentType, q.Key, q.Label, q.AnswerType, q.Required, q.Order)
	if err != nil {
		return incident.Question{}, eris.Wrap(err, "insert question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return incident.Question{}, ErrConflict
	}
	return q, nil
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, id string, p QuestionPatch) (incident.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `
SELECT id, incident_type, question_key, label, answer_type, required, order_index
FROM incident_questions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return incident.Question{}, ErrNotFound
	}
	if err != nil {
		return incident.Question{}, eris.Wrap(err, "load question")
	}
	applyQuestionPatch(&q, p)
	_, err = s.db.ExecContext(ctx, `
UPDATE incident_questions
SET question_key = $2, label = $3, answer_type = $4, required = $5, order_index = $6
WHERE id = $1`,
		q.ID, q.Key, q.Label, q.AnswerType, q.Required, q.Order)
	if isUniqueViolation(err) {
		return incident.Question{}, ErrConflict
	}
	if err != nil {
		return incident.Question{}, eris.Wrap(err, "update question")
	}
	return q, nil
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incident_questions WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "delete question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const promptColumns = `id, name, purpose, content, version_tag, created_at`

func scanPrompt(r rowScanner) (incident.Prompt, error) {
	var p incident.Prompt
	err := r.Scan(&p.ID, &p.Name, &p.Purpose, &p.Content, &p.VersionTag, &p.CreatedAt)
	return p, err
}

func (s *SQLStore) ListPrompts(ctx context.Context) ([]incident.Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+promptColumns+` FROM prompts ORDER BY version_tag, name`)
	if err != nil {
		return nil, eris.Wrap(err, "query prompts")
	}
	defer rows.Close()

	var out []incident.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan prompt")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreatePrompt(ctx context.Context, p incident.Prompt) (incident.Prompt, error) {
	p, err := normalizePrompt(p)
	if err != nil {
		return incident.Prompt{}, err
	}
	p.ID = newID()
	p.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO prompts (`+promptColumns+`)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (name, version_tag) DO NOTHING`,
		p.ID, p.Name, p.Purpose, p.Content, p.VersionTag, p.CreatedAt)
	if err != nil {
		return incident.Prompt{}, eris.Wrap(err, "insert prompt")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return incident.Prompt{}, ErrConflict
	}
	return p, nil
}

func (s *SQLStore) UpdatePrompt(ctx context.Context, id string, patch PromptPatch) (incident.Prompt, error) {
	p, err := scanPrompt(s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return incident.Prompt{}, ErrNotFound
	}
	if err != nil {
		return incident.Prompt{}, eris.Wrap(err, "load prompt")
	}
	applyPromptPatch(&p, patch)
	_, err = s.db.ExecContext(ctx, `
UPDATE prompts SET name = $2, purpose = $3, content = $4, version_tag = $5
WHERE id = $1`,
		p.ID, p.Name, p.Purpose, p.Content, p.VersionTag)
	if isUniqueViolation(err) {
		return incident.Prompt{}, ErrConflict
	}
	if err != nil {
		return incident.Prompt{}, eris.Wrap(err, "update prompt")
	}
	return p, nil
}

func (s *SQLStore) DeletePrompt(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "delete prompt")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
