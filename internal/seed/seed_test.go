package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reportanalyzer/internal/incident"
	"reportanalyzer/internal/registry"
	"reportanalyzer/internal/store"
	"reportanalyzer/internal/taxonomy"
)

func TestDefaultSeedIsComplete(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)
	assert.Equal(t, incident.DefaultVersionTag, d.Version)
	assert.Empty(t, d.Templates().Missing())

	var codes []string
	for _, ty := range d.IncidentTypes() {
		codes = append(codes, ty.Code)
	}
	assert.Equal(t, []string{"einbruch", "sachbeschaedigung", "koerperverletzung", "brandstiftung", "selbstverletzung"}, codes)

	// every question belongs to a seeded type
	known := map[string]bool{}
	for _, c := range codes {
		known[c] = true
	}
	for _, q := range d.QuestionBank() {
		assert.True(t, known[q.IncidentType], q.IncidentType)
		assert.NotEmpty(t, q.AnswerType)
	}
}

func TestQuestionDefaults(t *testing.T) {
	d, err := Parse([]byte(`
questions:
  - incident_type: Einbruch
    question_key: wann
    label: Wann?
  - incident_type: einbruch
    question_key: was
    label: Was?
    required: false
`))
	require.NoError(t, err)
	assert.Equal(t, "v1", d.Version)
	qs := d.QuestionBank()
	require.Len(t, qs, 2)
	assert.Equal(t, "einbruch", qs[0].IncidentType)
	assert.Equal(t, "text", qs[0].AnswerType)
	assert.True(t, qs[0].Required)
	assert.False(t, qs[1].Required)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d, err := Default()
	require.NoError(t, err)
	s := store.NewMemory()

	first, err := Apply(ctx, s, d, zap.NewNop())
	require.NoError(t, err)
	total := len(d.Types) + len(d.Questions) + len(d.Prompts)
	assert.Equal(t, Summary{Created: total}, first)

	second, err := Apply(ctx, s, d, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: total}, second)

	snap, err := registry.New(s, registry.Options{}).Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Fallback)
	assert.Len(t, snap.Types, 5)
	require.NotEmpty(t, snap.QuestionsFor("einbruch"))
	assert.Equal(t, "Wann passierte es?", snap.QuestionsFor("einbruch")[0].Label)
}

func TestFallbackResolvesSeededNames(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)
	fb := d.Fallback()
	assert.True(t, fb.Fallback)
	assert.Empty(t, fb.Questions)

	r := taxonomy.NewResolver(fb.Types, zap.NewNop())
	assert.Equal(t, []string{"koerperverletzung", "einbruch"}, r.Resolve([]string{"körperverletzung", "Einbruch"}))
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	_, err := Parse([]byte("types: [\n"))
	assert.Error(t, err)
}
