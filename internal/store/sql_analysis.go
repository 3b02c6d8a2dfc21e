package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"reportanalyzer/internal/incident"
)

type answerValue struct {
	Answer string `json:"answer"`
	Label  string `json:"label,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

func (s *SQLStore) now() time.Time { return time.Now().UTC() }

func (s *SQLStore) CreateReport(ctx context.Context, r incident.Report) (incident.Report, error) {
	r.ID = newID()
	r.CreatedAt = s.now()
	if r.Language == "" {
		r.Language = "de"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO raw_reports (id, title, body, language, source, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, nullString(r.Title), r.Body, r.Language, nullString(r.Source), r.CreatedAt)
	if err != nil {
		return incident.Report{}, eris.Wrap(err, "insert raw report")
	}
	return r, nil
}

// CreateIncidents inserts one incident per code in a single transaction.
func (s *SQLStore) CreateIncidents(ctx context.Context, reportID string, codes []string) ([]incident.Matched, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	out := make([]incident.Matched, 0, len(codes))
	for i, code := range codes {
		inc := incident.Matched{ID: newID(), ReportID: reportID, IncidentType: code, Status: "new"}
		_, err := tx.ExecContext(ctx, `
INSERT INTO incidents (id, report_id, incident_type, status, position, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
			inc.ID, inc.ReportID, inc.IncidentType, inc.Status, i, now)
		if err != nil {
			return nil, eris.Wrapf(err, "insert incident %s", code)
		}
		out = append(out, inc)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "commit incidents")
	}
	return out, nil
}

func (s *SQLStore) CreateRun(ctx context.Context, run incident.RunRecord) (incident.RunRecord, error) {
	run.ID = newID()
	run.CreatedAt = s.now()
	req := run.Request
	if len(req) == 0 {
		req = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO llm_runs (
  id, purpose, report_id, incident_id, model_name, request_json, response_json,
  tokens_prompt, tokens_completion, latency_ms, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		run.ID, string(run.Purpose), nullString(run.ReportID), nullString(run.IncidentID), run.ModelName,
		string(req), jsonParam(run.Response),
		nullInt(run.TokensPrompt), nullInt(run.TokensCompletion), run.LatencyMS, run.CreatedAt)
	if err != nil {
		return incident.RunRecord{}, eris.Wrap(err, "insert llm run")
	}
	return run, nil
}

// SaveAnswers writes all answers in one transaction.
func (s *SQLStore) SaveAnswers(ctx context.Context, answers []incident.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	for i, a := range answers {
		val, err := json.Marshal(answerValue{Answer: a.Text, Label: a.Label, Failed: a.Failed})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO structured_answers (id, incident_id, question_key, value_json, position, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
			newID(), a.IncidentID, a.QuestionKey, string(val), i, now)
		if err != nil {
			return eris.Wrapf(err, "insert answer %s", a.QuestionKey)
		}
	}
	return eris.Wrap(tx.Commit(), "commit answers")
}

func (s *SQLStore) SaveFinalReport(ctx context.Context, fr incident.FinalReport) (incident.FinalReport, error) {
	fr.ID = newID()
	fr.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO final_reports (id, incident_id, body_md, model_name, created_at)
VALUES ($1,$2,$3,$4,$5)`,
		fr.ID, fr.IncidentID, fr.Body, nullString(fr.ModelName), fr.CreatedAt)
	if err != nil {
		return incident.FinalReport{}, eris.Wrap(err, "insert final report")
	}
	return fr, nil
}

// ListRuns returns the newest runs first.
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]incident.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, purpose, report_id, incident_id, model_name, request_json, response_json,
  tokens_prompt, tokens_completion, latency_ms, created_at
FROM llm_runs
ORDER BY created_at DESC, id DESC
LIMIT $1`, clampLimit(limit, DefaultRunsLimit))
	if err != nil {
		return nil, eris.Wrap(err, "query llm runs")
	}
	defer rows.Close()

	var out []incident.RunRecord
	for rows.Next() {
		var (
			run                  incident.RunRecord
			purpose              string
			reportID, incidentID sql.NullString
			req, resp            sql.NullString
			tp, tc, lat          sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &purpose, &reportID, &incidentID, &run.ModelName, &req, &resp, &tp, &tc, &lat, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "scan llm run")
		}
		run.Purpose = incident.Purpose(purpose)
		run.ReportID = reportID.String
		run.IncidentID = incidentID.String
		if req.Valid {
			run.Request = json.RawMessage(req.String)
		}
		if resp.Valid {
			run.Response = json.RawMessage(resp.String)
		}
		run.TokensPrompt = intPtr(tp)
		run.TokensCompletion = intPtr(tc)
		run.LatencyMS = lat.Int64
		out = append(out, run)
	}
	return out, rows.Err()
}

// RecentReports returns the newest reports first, each with its incidents,
// answers and final report.
func (s *SQLStore) RecentReports(ctx context.Context, limit int) ([]ReportBundle, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, body, language, source, created_at
FROM raw_reports
ORDER BY created_at DESC, id DESC
LIMIT $1`, clampLimit(limit, DefaultHistoryLimit))
	if err != nil {
		return nil, eris.Wrap(err, "query raw reports")
	}
	var out []ReportBundle
	for rows.Next() {
		var (
			r             incident.Report
			title, source sql.NullString
		)
		if err := rows.Scan(&r.ID, &title, &r.Body, &r.Language, &source, &r.CreatedAt); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "scan raw report")
		}
		r.Title = title.String
		r.Source = source.String
		out = append(out, ReportBundle{Report: r})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if err := s.fillBundle(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) fillBundle(ctx context.Context, b *ReportBundle) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, incident_type, status FROM incidents
WHERE report_id = $1
ORDER BY position`, b.Report.ID)
	if err != nil {
		return eris.Wrap(err, "query incidents")
	}
	for rows.Next() {
		inc := incident.Matched{ReportID: b.Report.ID}
		if err := rows.Scan(&inc.ID, &inc.IncidentType, &inc.Status); err != nil {
			rows.Close()
			return eris.Wrap(err, "scan incident")
		}
		b.Incidents = append(b.Incidents, inc)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
SELECT a.incident_id, i.incident_type, a.question_key, a.value_json
FROM structured_answers a
JOIN incidents i ON i.id = a.incident_id
WHERE i.report_id = $1
ORDER BY i.position, a.position`, b.Report.ID)
	if err != nil {
		return eris.Wrap(err, "query answers")
	}
	for rows.Next() {
		var (
			a   incident.Answer
			val sql.NullString
		)
		if err := rows.Scan(&a.IncidentID, &a.IncidentType, &a.QuestionKey, &val); err != nil {
			rows.Close()
			return eris.Wrap(err, "scan answer")
		}
		if val.Valid {
			var v answerValue
			if err := json.Unmarshal([]byte(val.String), &v); err == nil {
				a.Text, a.Label, a.Failed = v.Answer, v.Label, v.Failed
			}
		}
		b.Answers = append(b.Answers, a)
	}
	rows.Close()

	var (
		fr    incident.FinalReport
		model sql.NullString
	)
	err = s.db.QueryRowContext(ctx, `
SELECT f.id, f.incident_id, f.body_md, f.model_name, f.created_at
FROM final_reports f
JOIN incidents i ON i.id = f.incident_id
WHERE i.report_id = $1
ORDER BY f.created_at
LIMIT 1`, b.Report.ID).Scan(&fr.ID, &fr.IncidentID, &fr.Body, &model, &fr.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return eris.Wrap(err, "query final report")
	default:
		fr.ModelName = model.String
		b.Final = &fr
	}
	return nil
}
