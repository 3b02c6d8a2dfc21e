package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"reportanalyzer/internal/incident"
	"reportanalyzer/internal/llm"
	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/prompt"
	"reportanalyzer/internal/registry"
)

type runRequest struct {
	Model   string           `json:"model"`
	Purpose incident.Purpose `json:"purpose"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
}

// invoke performs one model call and records it: one RunRecord, one audit
// block and one observer event per call, whatever the outcome.
func (st *runState) invoke(ctx context.Context, purpose incident.Purpose, incidentID, p string) (llmclient.Generation, error) {
	ctx = llm.WithPhase(ctx, string(purpose))
	start := time.Now()
	gen, err := st.p.client.Generate(ctx, p)
	elapsed := time.Since(start)
	if gen.Latency == 0 {
		gen.Latency = elapsed
	}

	reqJSON, _ := json.Marshal(runRequest{Model: st.model, Purpose: purpose, Prompt: p})
	run := incident.RunRecord{
		Purpose:          purpose,
		ModelName:        st.model,
		ReportID:         st.reportID,
		IncidentID:       incidentID,
		Request:          reqJSON,
		TokensPrompt:     gen.PromptTokens,
		TokensCompletion: gen.CompletionTokens,
		LatencyMS:        gen.Latency.Milliseconds(),
	}
	responseText := gen.Text
	ev := CallEvent{Purpose: purpose, IncidentID: incidentID, Latency: gen.Latency}
	if err != nil {
		run.Response, _ = json.Marshal(map[string]string{"error": err.Error()})
		responseText = "FEHLER: " + err.Error()
		ev.Err = err.Error()
	} else if len(gen.Raw) > 0 && json.Valid(gen.Raw) {
		run.Response = gen.Raw
	} else {
		run.Response, _ = json.Marshal(map[string]string{"response": gen.Text})
	}

	if _, perr := st.p.store.CreateRun(ctx, run); perr != nil {
		st.log.Warn("pipeline: persist run record",
			zap.String("purpose", string(purpose)),
			zap.Error(perr))
	}

	st.audit.WriteString("=== ")
	st.audit.WriteString(string(purpose))
	st.audit.WriteString(" ===\n")
	st.audit.WriteString(p)
	st.audit.WriteString("\n--- Antwort ---\n")
	st.audit.WriteString(responseText)
	st.audit.WriteString("\n\n")

	st.obs.OnCall(ev)
	return gen, err
}

// classify asks the model for matching type names. A failed call is fatal
// for the analysis; a badly formatted answer is not.
func (st *runState) classify(ctx context.Context, text string, snap registry.Snapshot) (Classification, error) {
	p := prompt.Classification(text, snap.Types, snap.Templates)
	gen, err := st.invoke(ctx, incident.PurposeClassify, "", p)
	if err != nil {
		return Classification{}, err
	}
	class := ParseClassification(gen.Text)
	if class.Kind == Degraded {
		st.log.Warn("pipeline: classification output not a list, split as free text",
			zap.String("raw", gen.Text),
			zap.Strings("items", class.Items))
	}
	return class, nil
}

// extract asks every question registered for every matched incident, one
// call at a time. It returns exactly one answer per question.
func (st *runState) extract(ctx context.Context, text string, incidents []incident.Matched, snap registry.Snapshot) []incident.Answer {
	var answers []incident.Answer
	for _, inc := range incidents {
		for _, q := range snap.QuestionsFor(inc.IncidentType) {
			a := incident.Answer{
				IncidentID:   inc.ID,
				IncidentType: inc.IncidentType,
				QuestionKey:  q.Key,
				Label:        q.Label,
			}
			gen, err := st.invoke(ctx, incident.PurposeExtractAnswer, inc.ID, prompt.Question(text, q.Label))
			if err != nil {
				st.log.Warn("pipeline: question failed, storing placeholder",
					zap.String("incident_type", inc.IncidentType),
					zap.String("question_key", q.Key),
					zap.Error(err))
				a.Text = AnswerFailedText
				a.Failed = true
				st.partial = true
			} else {
				a.Text = gen.Text
			}
			answers = append(answers, a)
		}
	}
	return answers
}

// synthesize writes the final report. On failure it returns the placeholder
// text and false.
func (st *runState) synthesize(ctx context.Context, text string, incidents []incident.Matched, answers []incident.Answer) (string, bool) {
	var primary string
	if len(incidents) > 0 {
		primary = incidents[0].ID
	}
	gen, err := st.invoke(ctx, incident.PurposeWriteFinalReport, primary, prompt.Synthesis(text, factGroups(incidents, answers)))
	if err != nil {
		st.log.Warn("pipeline: final report failed, returning placeholder", zap.Error(err))
		return ReportFailedText, false
	}
	return gen.Text, true
}

// factGroups renders answers per incident type in incident order. The
// question label is used as the fact key when present.
func factGroups(incidents []incident.Matched, answers []incident.Answer) []prompt.FactGroup {
	groups := make([]prompt.FactGroup, 0, len(incidents))
	idx := make(map[string]int, len(incidents))
	for _, inc := range incidents {
		idx[inc.IncidentType] = len(groups)
		groups = append(groups, prompt.FactGroup{IncidentType: inc.IncidentType})
	}
	for _, a := range answers {
		i, ok := idx[a.IncidentType]
		if !ok {
			continue
		}
		key := a.Label
		if key == "" {
			key = a.QuestionKey
		}
		groups[i].Facts = append(groups[i].Facts, prompt.Fact{Key: key, Value: a.Text})
	}
	return groups
}
