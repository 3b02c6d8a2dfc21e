package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reportanalyzer/internal/incident"
)

type fakeSource struct {
	types     []incident.Type
	questions []incident.Question
	set       incident.TemplateSet

	typesErr, questionsErr, setErr error
	block                          bool
	reads                          int
}

func (f *fakeSource) wait(ctx context.Context) error {
	if !f.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSource) ListIncidentTypes(ctx context.Context) ([]incident.Type, error) {
	f.reads++
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.types, f.typesErr
}

func (f *fakeSource) ListQuestions(ctx context.Context) ([]incident.Question, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.questions, f.questionsErr
}

func (f *fakeSource) TemplateSet(ctx context.Context, version string) (incident.TemplateSet, error) {
	if err := f.wait(ctx); err != nil {
		return incident.TemplateSet{}, err
	}
	return f.set, f.setErr
}

func completeSet() incident.TemplateSet {
	return incident.TemplateSet{Version: "v1", Fragments: map[string]string{
		incident.SlotBase:          "b",
		incident.SlotCategoryIntro: "c",
		incident.SlotClassifyRules: "r",
		incident.SlotInfo:          "i",
	}}
}

func fallback() Snapshot {
	return Snapshot{
		Types:     []incident.Type{{Code: "einbruch", Name: "Einbruch"}},
		Templates: incident.TemplateSet{Version: "builtin", Fragments: map[string]string{incident.SlotBase: "fallback"}},
	}
}

func TestSnapshot_ReadsAndSortsQuestions(t *testing.T) {
	src := &fakeSource{
		types: []incident.Type{{Code: "einbruch"}, {Code: "sachbeschaedigung"}},
		questions: []incident.Question{
			{IncidentType: "sachbeschaedigung", Key: "schaden", Order: 10},
			{IncidentType: "einbruch", Key: "where", Order: 20},
			{IncidentType: "einbruch", Key: "when", Order: 10},
		},
		set: completeSet(),
	}
	s := New(src, Options{Logger: zap.NewNop()})

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Fallback)

	var keys []string
	for _, q := range snap.QuestionsFor("einbruch") {
		keys = append(keys, q.Key)
	}
	if diff := cmp.Diff([]string{"when", "where"}, keys); diff != "" {
		t.Fatalf("question order (-want +got):\n%s", diff)
	}
	assert.Empty(t, snap.QuestionsFor(incident.UnknownCode))
}

func TestSnapshot_CachesUntilInvalidated(t *testing.T) {
	src := &fakeSource{set: completeSet()}
	s := New(src, Options{Logger: zap.NewNop()})

	_, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	_, err = s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads)

	s.Invalidate()
	_, err = s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.reads)
}

func TestSnapshot_CacheExpires(t *testing.T) {
	src := &fakeSource{set: completeSet()}
	s := New(src, Options{TTL: 20 * time.Millisecond, Logger: zap.NewNop()})

	_, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.reads)
}

func TestSnapshot_FallsBackOnReadError(t *testing.T) {
	down := errors.New("connection refused")
	src := &fakeSource{typesErr: down, questionsErr: down, setErr: down}
	s := New(src, Options{Fallback: fallback(), Logger: zap.NewNop()})

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Fallback)
	assert.Equal(t, fallback().Types, snap.Types)
	assert.Equal(t, "fallback", snap.Templates.Get(incident.SlotBase))
	assert.Empty(t, snap.Questions)

	_, err = s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.reads, "fallback snapshots are not cached")
}

func TestSnapshot_TimeoutFallsBack(t *testing.T) {
	src := &fakeSource{block: true}
	s := New(src, Options{Timeout: 20 * time.Millisecond, Fallback: fallback(), Logger: zap.NewNop()})

	start := time.Now()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Fallback)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSnapshot_MissingSlotIsConfigError(t *testing.T) {
	set := completeSet()
	delete(set.Fragments, incident.SlotInfo)
	s := New(&fakeSource{set: set}, Options{Version: "v2", Logger: zap.NewNop()})

	_, err := s.Snapshot(context.Background())
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "v2", cfgErr.Version)
	assert.Equal(t, []string{incident.SlotInfo}, cfgErr.Missing)
}
