package pipeline

import (
	"time"

	"reportanalyzer/internal/incident"
)

// Stage names the steps of one analysis, in execution order.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageClassify   Stage = "classify"
	StageMapTypes   Stage = "map_types"
	StageExtract    Stage = "extract"
	StageSynthesize Stage = "synthesize"
	StageDone       Stage = "done"
)

type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// StageEvent reports a stage transition.
type StageEvent struct {
	Stage    Stage         `json:"stage"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// CallEvent reports one finished model call.
type CallEvent struct {
	Purpose    incident.Purpose `json:"purpose"`
	IncidentID string           `json:"incident_id,omitempty"`
	Latency    time.Duration    `json:"latency_ns"`
	Err        string           `json:"error,omitempty"`
}

// Observer receives progress of one analysis. Calls happen on the analysis
// goroutine.
type Observer interface {
	OnStage(StageEvent)
	OnCall(CallEvent)
}

type nopObserver struct{}

func (nopObserver) OnStage(StageEvent) {}
func (nopObserver) OnCall(CallEvent)   {}
