package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseClassification(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind OutcomeKind
		want []string
	}{
		{"json list", `["diebstahl","sachbeschaedigung"]`, Structured, []string{"diebstahl", "sachbeschaedigung"}},
		{"comma text", `diebstahl, sachbeschaedigung`, Degraded, []string{"diebstahl", "sachbeschaedigung"}},
		{"single quotes", `['Einbruch', 'Brandstiftung']`, Structured, []string{"einbruch", "brandstiftung"}},
		{"list inside prose", "Die passenden Kategorien sind: [\"Einbruch\"] laut Bericht.", Structured, []string{"einbruch"}},
		{"code fence", "```json\n[\"koerperverletzung\"]\n```", Structured, []string{"koerperverletzung"}},
		{"empty list", `[]`, Structured, []string{}},
		{"bullets", "- Einbruch\n- Sachbeschädigung.", Degraded, []string{"einbruch", "sachbeschädigung"}},
		{"single word", "  Keiner. ", Degraded, []string{"keiner"}},
		{"empty", "   ", Degraded, []string{}},
		{"broken json", `["einbruch", `, Degraded, []string{"einbruch"}},
		{"unquoted list after preamble", "Antwort: [sachbeschaedigung, einbruch]", Degraded, []string{"sachbeschaedigung", "einbruch"}},
		{"label preamble", "Kategorien: sachbeschaedigung, einbruch", Degraded, []string{"sachbeschaedigung", "einbruch"}},
		{"preamble on its own line", "Antwort:\nEinbruch\nBrandstiftung", Degraded, []string{"einbruch", "brandstiftung"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseClassification(tc.raw)
			if got.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", got.Kind, tc.kind)
			}
			if diff := cmp.Diff(tc.want, got.Items); diff != "" {
				t.Fatalf("items (-want +got):\n%s", diff)
			}
			if got.Raw != tc.raw {
				t.Fatalf("raw not preserved: %q", got.Raw)
			}
		})
	}
}

func TestParseClassification_StructuredAndDegradedAgree(t *testing.T) {
	a := ParseClassification(`["diebstahl","sachbeschaedigung"]`)
	b := ParseClassification(`diebstahl, sachbeschaedigung`)
	if diff := cmp.Diff(a.Items, b.Items); diff != "" {
		t.Fatalf("structured and degraded differ:\n%s", diff)
	}
}
