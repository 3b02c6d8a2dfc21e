// Package registry serves read-only snapshots of the incident taxonomy, the
// question bank and the prompt templates.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"reportanalyzer/internal/incident"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultTTL     = 30 * time.Second
	cacheSize      = 16
)

// Source reads the live registries, usually the relational store.
type Source interface {
	ListIncidentTypes(ctx context.Context) ([]incident.Type, error)
	ListQuestions(ctx context.Context) ([]incident.Question, error)
	TemplateSet(ctx context.Context, version string) (incident.TemplateSet, error)
}

// ConfigError means the template set for a version lacks required slots.
type ConfigError struct {
	Version string
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("registry: template set %q is missing required slots: %s", e.Version, strings.Join(e.Missing, ", "))
}

// Snapshot is a consistent read of all registries for one request.
type Snapshot struct {
	Types     []incident.Type
	Questions []incident.Question
	Templates incident.TemplateSet
	// Fallback is set when any part came from the built-in default.
	Fallback bool
}

// QuestionsFor returns the questions registered for code in ask order.
func (s Snapshot) QuestionsFor(code string) []incident.Question {
	var out []incident.Question
	for _, q := range s.Questions {
		if q.IncidentType == code {
			out = append(out, q)
		}
	}
	return out
}

// SortQuestions orders questions by incident type, then order index, then key.
func SortQuestions(qs []incident.Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].IncidentType != qs[j].IncidentType {
			return qs[i].IncidentType < qs[j].IncidentType
		}
		if qs[i].Order != qs[j].Order {
			return qs[i].Order < qs[j].Order
		}
		return qs[i].Key < qs[j].Key
	})
}

type Options struct {
	Version string
	Timeout time.Duration
	TTL     time.Duration
	// Fallback supplies types and templates when the source cannot be read.
	Fallback Snapshot
	Logger   *zap.Logger
}

// Snapshotter reads the source with a short timeout and caches good reads.
// Failed reads degrade to the fallback instead of blocking the caller.
type Snapshotter struct {
	src      Source
	version  string
	timeout  time.Duration
	fallback Snapshot
	cache    *expirable.LRU[string, Snapshot]
	log      *zap.Logger
}

func New(src Source, opts Options) *Snapshotter {
	if opts.Version == "" {
		opts.Version = incident.DefaultVersionTag
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	return &Snapshotter{
		src:      src,
		version:  opts.Version,
		timeout:  opts.Timeout,
		fallback: opts.Fallback,
		cache:    expirable.NewLRU[string, Snapshot](cacheSize, nil, opts.TTL),
		log:      opts.Logger,
	}
}

// Version returns the template version this snapshotter reads.
func (s *Snapshotter) Version() string { return s.version }

// Snapshot returns the registries for the configured template version.
// The only error is *ConfigError, returned when templates were read but
// required slots are missing.
func (s *Snapshotter) Snapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok := s.cache.Get(s.version); ok {
		return snap, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var snap Snapshot
	types, err := s.src.ListIncidentTypes(ctx)
	if err != nil {
		s.log.Warn("registry: falling back to default incident types", zap.Error(err))
		types = s.fallback.Types
		snap.Fallback = true
	}
	snap.Types = types

	questions, err := s.src.ListQuestions(ctx)
	if err != nil {
		s.log.Warn("registry: question bank unavailable, asking no questions", zap.Error(err))
		questions = nil
		snap.Fallback = true
	}
	questions = append([]incident.Question(nil), questions...)
	SortQuestions(questions)
	snap.Questions = questions

	set, err := s.src.TemplateSet(ctx, s.version)
	if err != nil {
		s.log.Warn("registry: falling back to default templates", zap.String("version", s.version), zap.Error(err))
		set = s.fallback.Templates
		snap.Fallback = true
	} else if missing := set.Missing(); len(missing) > 0 {
		return Snapshot{}, &ConfigError{Version: s.version, Missing: missing}
	}
	snap.Templates = set

	if !snap.Fallback {
		s.cache.Add(s.version, snap)
	}
	return snap, nil
}

// Invalidate drops cached snapshots. Registry writes call it.
func (s *Snapshotter) Invalidate() {
	s.cache.Purge()
}
