package llm

import (
	"context"
	"encoding/json"
	"time"

	"reportanalyzer/internal/incident"
	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/prompt"
)

// FakeClient returns deterministic text per phase for offline runs. It never
// contacts a model.
type FakeClient struct {
	classification string
}

// NewFakeClient answers classification calls with classification, or with
// ["keiner"] when it is empty.
func NewFakeClient(classification string) *FakeClient {
	if classification == "" {
		classification = `["keiner"]`
	}
	return &FakeClient{classification: classification}
}

func (f *FakeClient) Name() string  { return "FakeLLM" }
func (f *FakeClient) Model() string { return "fake" }
func (f *FakeClient) Close() error  { return nil }

func (f *FakeClient) Ping(context.Context) error { return nil }

func (f *FakeClient) Generate(ctx context.Context, p string) (llmclient.Generation, error) {
	var text string
	switch incident.Purpose(PhaseFrom(ctx)) {
	case incident.PurposeClassify:
		text = f.classification
	case incident.PurposeExtractAnswer:
		text = prompt.NoInfoAnswer
	case incident.PurposeWriteFinalReport:
		text = "Der Vorfall wurde aufgenommen. Weitere Angaben lagen zum Zeitpunkt der Erfassung nicht vor."
	default:
		text = ""
	}
	pt := llmclient.EstimateTokens(p)
	ct := llmclient.EstimateTokens(text)
	raw, _ := json.Marshal(map[string]any{
		"model":             f.Model(),
		"response":          text,
		"done":              true,
		"prompt_eval_count": pt,
		"eval_count":        ct,
	})
	return llmclient.Generation{
		Text:             text,
		Raw:              raw,
		PromptTokens:     &pt,
		CompletionTokens: &ct,
		Latency:          time.Millisecond,
	}, nil
}
