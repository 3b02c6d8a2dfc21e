package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"reportanalyzer/internal/incident"
	"reportanalyzer/internal/llm"
	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/registry"
	"reportanalyzer/internal/store"
)

// scriptedClient answers per phase and records every prompt it sees.
type scriptedClient struct {
	mu       sync.Mutex
	classify string
	answers  []string
	report   string
	fail     map[incident.Purpose]error
	failNth  map[int]error
	calls    []incident.Purpose
	prompts  []string
}

func (c *scriptedClient) Name() string  { return "Scripted" }
func (c *scriptedClient) Model() string { return "scripted-1" }
func (c *scriptedClient) Close() error  { return nil }

func (c *scriptedClient) Generate(ctx context.Context, p string) (llmclient.Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	purpose := incident.Purpose(llm.PhaseFrom(ctx))
	n := len(c.calls)
	c.calls = append(c.calls, purpose)
	c.prompts = append(c.prompts, p)
	if err := c.failNth[n]; err != nil {
		return llmclient.Generation{}, err
	}
	if err := c.fail[purpose]; err != nil {
		return llmclient.Generation{}, err
	}
	var text string
	switch purpose {
	case incident.PurposeClassify:
		text = c.classify
	case incident.PurposeExtractAnswer:
		if len(c.answers) > 0 {
			text, c.answers = c.answers[0], c.answers[1:]
		} else {
			text = "Keine Angabe im Text."
		}
	case incident.PurposeWriteFinalReport:
		text = c.report
	}
	return llmclient.Generation{Text: text, Latency: time.Millisecond}, nil
}

type recordingObserver struct {
	stages []StageEvent
	calls  []CallEvent
}

func (o *recordingObserver) OnStage(e StageEvent) { o.stages = append(o.stages, e) }
func (o *recordingObserver) OnCall(e CallEvent)   { o.calls = append(o.calls, e) }

type memArchive struct {
	saved map[string]string
	err   error
}

func (a *memArchive) Save(_ context.Context, reportID, finalReport string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.saved == nil {
		a.saved = map[string]string{}
	}
	key := "reports/" + reportID
	a.saved[key] = finalReport
	return key, nil
}

func v1Templates() incident.TemplateSet {
	return incident.TemplateSet{Version: "v1", Fragments: map[string]string{
		incident.SlotBase:          "Du bist ein Analysemodell.",
		incident.SlotCategoryIntro: "Mögliche Vorfallstypen:",
		incident.SlotClassifyRules: "Gib ausschließlich die Bezeichnungen aus.",
		incident.SlotInfo:          "Nachfolgend findest du den Bericht:",
	}}
}

func seededStore(t *testing.T, templates incident.TemplateSet) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	_, err := s.CreateIncidentType(ctx, incident.Type{Code: "sachbeschaedigung", Name: "Sachbeschädigung", Description: "Zerstörung oder Beschädigung fremden Eigentums"})
	require.NoError(t, err)
	_, err = s.CreateIncidentType(ctx, incident.Type{Code: "einbruch", Name: "Einbruch"})
	require.NoError(t, err)
	_, err = s.CreateQuestion(ctx, incident.Question{IncidentType: "sachbeschaedigung", Key: "beteiligte", Label: "Wer war beteiligt?", Order: 10})
	require.NoError(t, err)
	for name, content := range templates.Fragments {
		_, err := s.CreatePrompt(ctx, incident.Prompt{Name: name, Content: content, VersionTag: templates.Version})
		require.NoError(t, err)
	}
	return s
}

func newPipeline(t *testing.T, s *store.MemoryStore, c llmclient.Client, archive Archiver) *Pipeline {
	t.Helper()
	reg := registry.New(s, registry.Options{Version: "v1", Logger: zaptest.NewLogger(t)})
	return New(Deps{Store: s, Registry: reg, Client: c, Archive: archive, Logger: zaptest.NewLogger(t)})
}

func TestAnalyzeEmptyTextMakesNoCalls(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{}
	p := newPipeline(t, s, c, nil)

	for _, text := range []string{"", "   \n\t "} {
		_, err := p.Analyze(context.Background(), Request{Text: text})
		require.Error(t, err)
		var inputErr *ClientInputError
		assert.ErrorAs(t, err, &inputErr)
		assert.Equal(t, "empty text submitted", err.Error())
	}
	assert.Empty(t, c.calls)
	assert.Equal(t, 0, s.Counts()["raw_reports"])
}

func TestAnalyzeEndToEnd(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{
		classify: `["sachbeschaedigung"]`,
		answers:  []string{"Unbekannt"},
		report:   "Eine unbekannte Person zerriss eine Matratze.",
	}
	archive := &memArchive{}
	p := newPipeline(t, s, c, archive)

	res, err := p.Analyze(context.Background(), Request{Text: "  Die Person hat die Matratze zerrissen. "})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, Structured, res.ClassificationFormat)
	assert.Equal(t, `["sachbeschaedigung"]`, res.Classification)
	assert.Equal(t, []string{"sachbeschaedigung"}, res.MatchedIncidentTypes)
	assert.Equal(t, "Eine unbekannte Person zerriss eine Matratze.", res.FinalReport)
	assert.Equal(t, "scripted-1", res.Model)
	assert.Equal(t, len([]rune("Die Person hat die Matratze zerrissen.")), res.CharsIn)
	require.Len(t, res.IncidentIDs, 1)
	assert.NotEmpty(t, res.ReportID)
	if diff := cmp.Diff(map[string]map[string]string{
		"sachbeschaedigung": {"beteiligte": "Unbekannt"},
	}, res.Answers); diff != "" {
		t.Fatalf("answers mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []incident.Purpose{
		incident.PurposeClassify,
		incident.PurposeExtractAnswer,
		incident.PurposeWriteFinalReport,
	}, c.calls)

	counts := s.Counts()
	assert.Equal(t, 1, counts["raw_reports"])
	assert.Equal(t, 1, counts["incidents"])
	assert.Equal(t, 1, counts["structured_answers"])
	assert.Equal(t, 3, counts["llm_runs"])
	assert.Equal(t, 1, counts["final_reports"])

	assert.Equal(t, "reports/"+res.ReportID, res.ArchiveKey)
	assert.Equal(t, res.FinalReport, archive.saved[res.ArchiveKey])

	assert.Contains(t, res.Prompt, "=== classify ===\n")
	assert.Contains(t, res.Prompt, "=== extract_answer ===\n")
	assert.Contains(t, res.Prompt, "--- Antwort ---\nUnbekannt\n\n")
	assert.Contains(t, res.Prompt, "Wer war beteiligt?")

	// the synthesis prompt carries the fact keyed by its label
	assert.Contains(t, c.prompts[2], "Wer war beteiligt?: Unbekannt")
}

func TestAnalyzeNoMatchMapsToUnknown(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{classify: "keiner", report: "Bericht."}
	p := newPipeline(t, s, c, nil)

	res, err := p.Analyze(context.Background(), Request{Text: "Es ist nichts passiert."})
	require.NoError(t, err)
	assert.Equal(t, []string{incident.UnknownCode}, res.MatchedIncidentTypes)
	assert.Equal(t, Degraded, res.ClassificationFormat)
	assert.Equal(t, []incident.Purpose{incident.PurposeClassify, incident.PurposeWriteFinalReport}, c.calls)
	assert.Equal(t, map[string]map[string]string{incident.UnknownCode: {}}, res.Answers)
}

func TestAnalyzeExtractionFailureKeepsAnswerCount(t *testing.T) {
	s := seededStore(t, v1Templates())
	ctx := context.Background()
	_, err := s.CreateQuestion(ctx, incident.Question{IncidentType: "sachbeschaedigung", Key: "schaden", Label: "Was wurde beschädigt?", Order: 20})
	require.NoError(t, err)

	c := &scriptedClient{
		classify: `["sachbeschaedigung"]`,
		answers:  []string{"Eine Matratze"},
		report:   "Bericht.",
		// call 0 is classification, call 1 the first question
		failNth: map[int]error{1: &llmclient.UpstreamUnavailableError{Cause: errors.New("connection refused")}},
	}
	p := newPipeline(t, s, c, nil)

	res, err := p.Analyze(ctx, Request{Text: "Die Person hat die Matratze zerrissen."})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, AnswerFailedText, res.Answers["sachbeschaedigung"]["beteiligte"])
	assert.Equal(t, "Eine Matratze", res.Answers["sachbeschaedigung"]["schaden"])

	stored := s.Answers()
	require.Len(t, stored, 2)
	assert.True(t, stored[0].Failed)
	assert.False(t, stored[1].Failed)
	assert.Equal(t, 4, s.Counts()["llm_runs"])
	assert.Contains(t, res.Prompt, "FEHLER: ")
}

func TestAnalyzeSynthesisFailureReturnsPlaceholder(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{
		classify: `["sachbeschaedigung"]`,
		fail:     map[incident.Purpose]error{incident.PurposeWriteFinalReport: &llmclient.UpstreamHTTPError{Status: 500, Body: "boom"}},
	}
	p := newPipeline(t, s, c, nil)

	res, err := p.Analyze(context.Background(), Request{Text: "Die Person hat die Matratze zerrissen."})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, ReportFailedText, res.FinalReport)
	assert.Equal(t, 0, s.Counts()["final_reports"])
	assert.Equal(t, 1, s.Counts()["structured_answers"])
}

func TestAnalyzeClassificationFailureIsFatal(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{
		fail: map[incident.Purpose]error{incident.PurposeClassify: &llmclient.UpstreamHTTPError{Status: 404, Body: "model not found"}},
	}
	obs := &recordingObserver{}
	p := newPipeline(t, s, c, nil)

	_, err := p.AnalyzeObserved(context.Background(), Request{Text: "Ein Fenster wurde eingeschlagen."}, obs)
	require.Error(t, err)
	assert.True(t, llmclient.IsUpstream(err))

	counts := s.Counts()
	assert.Equal(t, 1, counts["raw_reports"])
	assert.Equal(t, 1, counts["llm_runs"])
	assert.Equal(t, 0, counts["incidents"])

	runs := s.Runs()
	require.Len(t, runs, 1)
	assert.Contains(t, string(runs[0].Response), "model not found")

	last := obs.stages[len(obs.stages)-1]
	assert.Equal(t, StageClassify, last.Stage)
	assert.Equal(t, StageFailed, last.Status)
}

func TestAnalyzeMissingTemplatesFailsBeforeModelCall(t *testing.T) {
	set := v1Templates()
	delete(set.Fragments, incident.SlotClassifyRules)
	s := seededStore(t, set)
	c := &scriptedClient{classify: `["einbruch"]`}
	p := newPipeline(t, s, c, nil)

	_, err := p.Analyze(context.Background(), Request{Text: "Ein Fenster wurde eingeschlagen."})
	var cfgErr *registry.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Missing, incident.SlotClassifyRules)
	assert.Empty(t, c.calls)
	assert.Equal(t, 0, s.Counts()["llm_runs"])
}

func TestAnalyzeObserverSequence(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{classify: `["sachbeschaedigung"]`, report: "Bericht."}
	obs := &recordingObserver{}
	p := newPipeline(t, s, c, nil)

	_, err := p.AnalyzeObserved(context.Background(), Request{Text: "Die Person hat die Matratze zerrissen."}, obs)
	require.NoError(t, err)

	var got []string
	for _, e := range obs.stages {
		got = append(got, string(e.Stage)+":"+string(e.Status))
	}
	want := []string{
		"ingest:started", "ingest:completed",
		"classify:started", "classify:completed",
		"map_types:started", "map_types:completed",
		"extract:started", "extract:completed",
		"synthesize:started", "synthesize:completed",
		"done:completed",
	}
	assert.Equal(t, want, got)
	require.Len(t, obs.calls, 3)
	assert.Equal(t, incident.PurposeExtractAnswer, obs.calls[1].Purpose)
	assert.NotEmpty(t, obs.calls[1].IncidentID)
}

func TestAnalyzeArchiveFailureIsNotFatal(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{classify: `["einbruch"]`, report: "Bericht."}
	p := newPipeline(t, s, c, &memArchive{err: errors.New("bucket gone")})

	res, err := p.Analyze(context.Background(), Request{Text: "Ein Fenster wurde eingeschlagen."})
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveKey)
	assert.Equal(t, StatusOK, res.Status)
}

func TestAnalyzeClassificationPromptCarriesRegistry(t *testing.T) {
	s := seededStore(t, v1Templates())
	c := &scriptedClient{classify: "Sachbeschädigung", report: "Bericht."}
	p := New(Deps{
		Store:    s,
		Registry: registry.New(s, registry.Options{Version: "v1"}),
		Client:   c,
		Logger:   zap.NewNop(),
	})

	res, err := p.Analyze(context.Background(), Request{Text: "Die Person hat die Matratze zerrissen."})
	require.NoError(t, err)
	assert.Equal(t, []string{"sachbeschaedigung"}, res.MatchedIncidentTypes)

	cp := c.prompts[0]
	assert.True(t, strings.HasPrefix(cp, "Du bist ein Analysemodell.\n"))
	assert.Contains(t, cp, "- Sachbeschädigung: Zerstörung oder Beschädigung fremden Eigentums")
	assert.True(t, strings.HasSuffix(cp, "Die Person hat die Matratze zerrissen.\n"))
}
