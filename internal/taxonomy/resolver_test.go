package taxonomy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"reportanalyzer/internal/incident"
)

func testTypes() []incident.Type {
	return []incident.Type{
		{Code: "diebstahl", Name: "Diebstahl"},
		{Code: "sachbeschaedigung", Name: "Sachbeschädigung"},
		{Code: "einbruch", Name: " Einbruch "},
	}
}

func TestResolve_StructuredListKeepsOrder(t *testing.T) {
	r := NewResolver(testTypes(), zap.NewNop())
	got := r.Resolve([]string{"diebstahl", "sachbeschaedigung"})
	if diff := cmp.Diff([]string{"diebstahl", "sachbeschaedigung"}, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_MatchesNamesCaseInsensitive(t *testing.T) {
	r := NewResolver(testTypes(), zap.NewNop())
	got := r.Resolve([]string{"  SACHBESCHÄDIGUNG", "einbruch"})
	assert.Equal(t, []string{"sachbeschaedigung", "einbruch"}, got)
}

func TestResolve_DuplicatesPreserved(t *testing.T) {
	r := NewResolver(testTypes(), zap.NewNop())
	got := r.Resolve([]string{"diebstahl", "Diebstahl"})
	assert.Equal(t, []string{"diebstahl", "diebstahl"}, got)
	assert.Equal(t, []string{"diebstahl"}, Dedup(got))
}

func TestResolve_NoneSentinelYieldsUnknown(t *testing.T) {
	r := NewResolver(testTypes(), zap.NewNop())
	assert.Equal(t, []string{incident.UnknownCode}, r.Resolve([]string{"keiner"}))
	assert.Equal(t, []string{incident.UnknownCode}, r.Resolve([]string{"None"}))
	assert.Equal(t, []string{incident.UnknownCode}, r.Resolve(nil))
}

func TestResolve_UnknownNameDroppedWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(testTypes(), zap.New(core))

	got := r.Resolve([]string{"voelkermord", "einbruch"})
	assert.Equal(t, []string{"einbruch"}, got)

	entries := logs.FilterField(zap.String("name", "voelkermord")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestResolve_OnlyUnknownNamesFallBack(t *testing.T) {
	r := NewResolver(testTypes(), zap.NewNop())
	assert.Equal(t, []string{incident.UnknownCode}, r.Resolve([]string{"voelkermord"}))
}

func TestNewResolver_CodeWinsOverCollidingName(t *testing.T) {
	types := []incident.Type{
		{Code: "brand", Name: "Brandstiftung"},
		{Code: "feuer", Name: "brand"},
	}
	r := NewResolver(types, zap.NewNop())
	code, ok := r.Lookup("brand")
	require.True(t, ok)
	assert.Equal(t, "brand", code)

	code, ok = r.Lookup("Feuer")
	require.True(t, ok)
	assert.Equal(t, "feuer", code)
}
