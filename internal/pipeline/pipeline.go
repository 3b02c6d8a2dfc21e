// Package pipeline turns one free-text report into matched incident types,
// answered questions and a written final report.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"reportanalyzer/internal/incident"
	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/registry"
	"reportanalyzer/internal/taxonomy"
)

// Store is the persistence the pipeline writes to.
type Store interface {
	CreateReport(ctx context.Context, r incident.Report) (incident.Report, error)
	CreateIncidents(ctx context.Context, reportID string, codes []string) ([]incident.Matched, error)
	CreateRun(ctx context.Context, run incident.RunRecord) (incident.RunRecord, error)
	SaveAnswers(ctx context.Context, answers []incident.Answer) error
	SaveFinalReport(ctx context.Context, fr incident.FinalReport) (incident.FinalReport, error)
}

// Registry yields the read-only registries for one request.
type Registry interface {
	Snapshot(ctx context.Context) (registry.Snapshot, error)
}

// Archiver keeps a copy of a finished analysis outside the database.
type Archiver interface {
	Save(ctx context.Context, reportID, finalReport string, result []byte) (string, error)
}

type Deps struct {
	Store    Store
	Registry Registry
	Client   llmclient.Client
	Archive  Archiver
	Logger   *zap.Logger
}

// Pipeline runs analyses. One Pipeline serves concurrent requests; it holds
// no per-request state.
type Pipeline struct {
	store   Store
	reg     Registry
	client  llmclient.Client
	archive Archiver
	log     *zap.Logger
}

func New(d Deps) *Pipeline {
	if d.Logger == nil {
		d.Logger = zap.L()
	}
	return &Pipeline{
		store:   d.Store,
		reg:     d.Registry,
		client:  d.Client,
		archive: d.Archive,
		log:     d.Logger,
	}
}

// Request is one analysis submission.
type Request struct {
	Text   string `json:"text"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
}

// Result is returned to the caller after a completed analysis.
type Result struct {
	Status               string                       `json:"status"`
	Classification       string                       `json:"classification"`
	ClassificationFormat OutcomeKind                  `json:"classification_format"`
	FinalReport          string                       `json:"final_report"`
	Prompt               string                       `json:"prompt"`
	Model                string                       `json:"model"`
	CharsIn              int                          `json:"chars_in"`
	ReportID             string                       `json:"report_id"`
	IncidentIDs          []string                     `json:"incident_ids"`
	MatchedIncidentTypes []string                     `json:"matched_incident_types"`
	Answers              map[string]map[string]string `json:"answers"`
	ArchiveKey           string                       `json:"archive_key,omitempty"`
}

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
)

// Analyze runs the full pipeline.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Result, error) {
	return p.AnalyzeObserved(ctx, req, nil)
}

// AnalyzeObserved runs the full pipeline and reports progress to obs.
//
// Ingest, Classify, MapTypes, Extract and Synthesize run strictly in order.
// Only a failed classification call aborts the run; extraction and synthesis
// failures become placeholder text and the result status turns "partial".
func (p *Pipeline) AnalyzeObserved(ctx context.Context, req Request, obs Observer) (*Result, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	st := &runState{
		p:      p,
		obs:    obs,
		log:    p.log,
		model:  p.client.Model(),
		result: &Result{Status: StatusOK, Model: p.client.Model(), CharsIn: utf8.RuneCountInString(text)},
	}

	// Ingest
	var report incident.Report
	err := st.stage(StageIngest, func() error {
		source := req.Source
		if source == "" {
			source = "api"
		}
		var err error
		report, err = p.store.CreateReport(ctx, incident.Report{
			Title:    strings.TrimSpace(req.Title),
			Body:     text,
			Language: "de",
			Source:   source,
		})
		if err != nil {
			return eris.Wrap(err, "persist report")
		}
		st.reportID = report.ID
		st.result.ReportID = report.ID
		st.log = p.log.With(zap.String("report_id", report.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Classify
	var (
		snap  registry.Snapshot
		class Classification
	)
	err = st.stage(StageClassify, func() error {
		var err error
		snap, err = p.reg.Snapshot(ctx)
		if err != nil {
			return err
		}
		if snap.Fallback {
			st.log.Warn("pipeline: registry fallback in use")
		}
		class, err = st.classify(ctx, text, snap)
		return err
	})
	if err != nil {
		return nil, err
	}
	st.result.Classification = class.Raw
	st.result.ClassificationFormat = class.Kind

	// MapTypes
	var incidents []incident.Matched
	err = st.stage(StageMapTypes, func() error {
		codes := taxonomy.Dedup(taxonomy.NewResolver(snap.Types, st.log).Resolve(class.Items))
		var err error
		incidents, err = p.store.CreateIncidents(ctx, st.reportID, codes)
		if err != nil {
			return eris.Wrap(err, "persist incidents")
		}
		st.result.MatchedIncidentTypes = codes
		st.result.IncidentIDs = make([]string, 0, len(incidents))
		for _, inc := range incidents {
			st.result.IncidentIDs = append(st.result.IncidentIDs, inc.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Extract, then checkpoint 1.
	var answers []incident.Answer
	err = st.stage(StageExtract, func() error {
		answers = st.extract(ctx, text, incidents, snap)
		if err := p.store.SaveAnswers(ctx, answers); err != nil {
			return eris.Wrap(err, "persist answers")
		}
		st.result.Answers = answerMap(incidents, answers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Synthesize, then checkpoint 2.
	err = st.stage(StageSynthesize, func() error {
		body, ok := st.synthesize(ctx, text, incidents, answers)
		st.result.FinalReport = body
		if !ok {
			st.partial = true
			return nil
		}
		if len(incidents) == 0 {
			return nil
		}
		_, err := p.store.SaveFinalReport(ctx, incident.FinalReport{
			IncidentID: incidents[0].ID,
			Body:       body,
			ModelName:  st.model,
		})
		return eris.Wrap(err, "persist final report")
	})
	if err != nil {
		return nil, err
	}

	if st.partial {
		st.result.Status = StatusPartial
	}
	st.result.Prompt = st.audit.String()
	p.archiveResult(ctx, st)
	obs.OnStage(StageEvent{Stage: StageDone, Status: StageCompleted})
	return st.result, nil
}

func (p *Pipeline) archiveResult(ctx context.Context, st *runState) {
	if p.archive == nil {
		return
	}
	raw, err := json.Marshal(st.result)
	if err != nil {
		st.log.Warn("pipeline: encode result for archive", zap.Error(err))
		return
	}
	key, err := p.archive.Save(ctx, st.reportID, st.result.FinalReport, raw)
	if err != nil {
		st.log.Warn("pipeline: archive failed", zap.Error(err))
		return
	}
	st.result.ArchiveKey = key
}

// answerMap groups answers by incident type and question key.
func answerMap(incidents []incident.Matched, answers []incident.Answer) map[string]map[string]string {
	out := make(map[string]map[string]string, len(incidents))
	for _, inc := range incidents {
		out[inc.IncidentType] = map[string]string{}
	}
	for _, a := range answers {
		m, ok := out[a.IncidentType]
		if !ok {
			m = map[string]string{}
			out[a.IncidentType] = m
		}
		m[a.QuestionKey] = a.Text
	}
	return out
}

// runState carries the bookkeeping of one analysis.
type runState struct {
	p        *Pipeline
	obs      Observer
	log      *zap.Logger
	model    string
	reportID string
	audit    strings.Builder
	partial  bool
	result   *Result
}

func (st *runState) stage(s Stage, fn func() error) error {
	st.obs.OnStage(StageEvent{Stage: s, Status: StageStarted})
	start := time.Now()
	err := fn()
	d := time.Since(start)
	if err != nil {
		st.log.Error("pipeline: stage failed",
			zap.String("stage", string(s)),
			zap.Int64("duration_ms", d.Milliseconds()),
			zap.Error(err))
		st.obs.OnStage(StageEvent{Stage: s, Status: StageFailed, Duration: d, Detail: err.Error()})
		return err
	}
	st.log.Info("pipeline: stage completed",
		zap.String("stage", string(s)),
		zap.Int64("duration_ms", d.Milliseconds()))
	st.obs.OnStage(StageEvent{Stage: s, Status: StageCompleted, Duration: d})
	return nil
}
