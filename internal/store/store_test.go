package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportanalyzer/internal/incident"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	lite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": lite,
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r, err := s.CreateReport(ctx, incident.Report{Body: "Die Person hat die Matratze zerrissen.", Source: "web"})
			require.NoError(t, err)
			require.NotEmpty(t, r.ID)
			assert.Equal(t, "de", r.Language)

			incs, err := s.CreateIncidents(ctx, r.ID, []string{"sachbeschaedigung", "unknown"})
			require.NoError(t, err)
			require.Len(t, incs, 2)
			assert.Equal(t, "new", incs[0].Status)

			require.NoError(t, s.SaveAnswers(ctx, []incident.Answer{
				{IncidentID: incs[0].ID, IncidentType: "sachbeschaedigung", QuestionKey: "beteiligte", Label: "Wer war beteiligt?", Text: "Unbekannt"},
				{IncidentID: incs[0].ID, IncidentType: "sachbeschaedigung", QuestionKey: "schaden", Label: "Was wurde beschädigt?", Text: "Fehler bei der Beantwortung der Frage.", Failed: true},
			}))

			_, err = s.SaveFinalReport(ctx, incident.FinalReport{IncidentID: incs[0].ID, Body: "Bericht.", ModelName: "Ollama:gemma:2b"})
			require.NoError(t, err)

			bundles, err := s.RecentReports(ctx, 10)
			require.NoError(t, err)
			require.Len(t, bundles, 1)
			b := bundles[0]
			assert.Equal(t, r.ID, b.Report.ID)
			assert.Equal(t, "web", b.Report.Source)
			require.Len(t, b.Incidents, 2)
			assert.Equal(t, "sachbeschaedigung", b.Incidents[0].IncidentType)
			require.Len(t, b.Answers, 2)
			assert.Equal(t, "Unbekannt", b.Answers[0].Text)
			assert.Equal(t, "Wer war beteiligt?", b.Answers[0].Label)
			assert.True(t, b.Answers[1].Failed)
			require.NotNil(t, b.Final)
			assert.Equal(t, "Bericht.", b.Final.Body)
		})
	}
}

func TestRunsNewestFirst(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r, err := s.CreateReport(ctx, incident.Report{Body: "x"})
			require.NoError(t, err)
			tokens := 7
			for _, p := range []incident.Purpose{incident.PurposeClassify, incident.PurposeExtractAnswer, incident.PurposeWriteFinalReport} {
				_, err := s.CreateRun(ctx, incident.RunRecord{
					Purpose:      p,
					ModelName:    "m",
					ReportID:     r.ID,
					Request:      json.RawMessage(`{"prompt":"p"}`),
					Response:     json.RawMessage(`{"response":"a"}`),
					TokensPrompt: &tokens,
					LatencyMS:    12,
				})
				require.NoError(t, err)
			}

			runs, err := s.ListRuns(ctx, 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, incident.PurposeWriteFinalReport, runs[0].Purpose)
			assert.Equal(t, incident.PurposeExtractAnswer, runs[1].Purpose)
			require.NotNil(t, runs[0].TokensPrompt)
			assert.Equal(t, 7, *runs[0].TokensPrompt)
			assert.Nil(t, runs[0].TokensCompletion)
			assert.JSONEq(t, `{"response":"a"}`, string(runs[0].Response))
			assert.Equal(t, r.ID, runs[0].ReportID)
		})
	}
}

func TestIncidentTypeCRUD(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.CreateIncidentType(ctx, incident.Type{Code: " Einbruch ", Name: "Einbruch"})
			require.NoError(t, err)
			_, err = s.CreateIncidentType(ctx, incident.Type{Code: "einbruch", Name: "Nochmal"})
			assert.ErrorIs(t, err, ErrConflict)
			_, err = s.CreateIncidentType(ctx, incident.Type{Code: "", Name: "x"})
			assert.ErrorIs(t, err, ErrInvalid)

			_, err = s.CreateQuestion(ctx, incident.Question{IncidentType: "einbruch", Key: "wann", Label: "Wann passierte es?", Order: 10})
			require.NoError(t, err)

			desc := "Unbefugtes Eindringen"
			updated, err := s.UpdateIncidentType(ctx, "einbruch", TypePatch{Description: &desc})
			require.NoError(t, err)
			assert.Equal(t, "Einbruch", updated.Name)
			assert.Equal(t, desc, updated.Description)

			_, err = s.UpdateIncidentType(ctx, "fehlt", TypePatch{})
			assert.ErrorIs(t, err, ErrNotFound)

			types, err := s.ListIncidentTypes(ctx)
			require.NoError(t, err)
			require.Len(t, types, 1)
			assert.Equal(t, desc, types[0].Description)

			require.NoError(t, s.DeleteIncidentType(ctx, "einbruch"))
			assert.ErrorIs(t, s.DeleteIncidentType(ctx, "einbruch"), ErrNotFound)

			qs, err := s.ListQuestions(ctx)
			require.NoError(t, err)
			assert.Empty(t, qs)
		})
	}
}

func TestQuestionCRUD(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q1, err := s.CreateQuestion(ctx, incident.Question{IncidentType: "einbruch", Key: "wo", Label: "Wo passierte es?", Order: 20, Required: true})
			require.NoError(t, err)
			_, err = s.CreateQuestion(ctx, incident.Question{IncidentType: "einbruch", Key: "wann", Label: "Wann passierte es?", Order: 10})
			require.NoError(t, err)
			_, err = s.CreateQuestion(ctx, incident.Question{IncidentType: "einbruch", Key: "wo", Label: "doppelt"})
			assert.ErrorIs(t, err, ErrConflict)

			qs, err := s.ListQuestions(ctx)
			require.NoError(t, err)
			require.Len(t, qs, 2)
			assert.Equal(t, "wann", qs[0].Key)
			assert.Equal(t, "text", qs[0].AnswerType)
			assert.True(t, qs[1].Required)

			key := "wann"
			_, err = s.UpdateQuestion(ctx, q1.ID, QuestionPatch{Key: &key})
			assert.ErrorIs(t, err, ErrConflict)

			order := 5
			upd, err := s.UpdateQuestion(ctx, q1.ID, QuestionPatch{Order: &order})
			require.NoError(t, err)
			assert.Equal(t, 5, upd.Order)

			require.NoError(t, s.DeleteQuestion(ctx, q1.ID))
			assert.ErrorIs(t, s.DeleteQuestion(ctx, q1.ID), ErrNotFound)
			_, err = s.UpdateQuestion(ctx, q1.ID, QuestionPatch{})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPromptsAndTemplateSet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base, err := s.CreatePrompt(ctx, incident.Prompt{Name: incident.SlotBase, Content: "Du bist ein Analysemodell."})
			require.NoError(t, err)
			assert.Equal(t, incident.DefaultVersionTag, base.VersionTag)
			_, err = s.CreatePrompt(ctx, incident.Prompt{Name: incident.SlotInfo, Content: "v2 info", VersionTag: "v2"})
			require.NoError(t, err)
			_, err = s.CreatePrompt(ctx, incident.Prompt{Name: incident.SlotBase, Content: "dup"})
			assert.ErrorIs(t, err, ErrConflict)

			set, err := s.TemplateSet(ctx, "v1")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{incident.SlotBase: "Du bist ein Analysemodell."}, set.Fragments)

			content := "Neu."
			upd, err := s.UpdatePrompt(ctx, base.ID, PromptPatch{Content: &content})
			require.NoError(t, err)
			assert.Equal(t, "Neu.", upd.Content)

			v2 := "v2"
			info := incident.SlotInfo
			_, err = s.UpdatePrompt(ctx, base.ID, PromptPatch{Name: &info, VersionTag: &v2})
			assert.ErrorIs(t, err, ErrConflict)

			all, err := s.ListPrompts(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "v1", all[0].VersionTag)

			require.NoError(t, s.DeletePrompt(ctx, base.ID))
			assert.ErrorIs(t, s.DeletePrompt(ctx, base.ID), ErrNotFound)
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultRunsLimit, clampLimit(0, DefaultRunsLimit))
	assert.Equal(t, 3, clampLimit(3, DefaultRunsLimit))
	assert.Equal(t, maxLimit, clampLimit(10_000, DefaultRunsLimit))
}
