// Package prompt builds the text prompts sent to the model. Everything here is
// a pure function of its inputs.
package prompt

import (
	"fmt"
	"strings"

	"reportanalyzer/internal/incident"
)

// NoInfoAnswer is the phrase the model must use when the report does not
// contain the requested information.
const NoInfoAnswer = "Keine Angabe im Text."

// questionMarker prefixes the question line of an extraction prompt.
const questionMarker = "Frage:"

// Fact is one answered question rendered into the synthesis prompt.
type Fact struct {
	Key   string
	Value string
}

// FactGroup holds the facts collected for one incident type.
type FactGroup struct {
	IncidentType string
	Facts        []Fact
}

// Classification concatenates the template fragments, the type list and the
// trimmed report text. Absent fragments render as empty strings.
func Classification(text string, types []incident.Type, set incident.TemplateSet) string {
	var b strings.Builder
	b.WriteString(set.Get(incident.SlotBase))
	b.WriteString("\n")
	if task := set.Get(incident.SlotTask); task != "" {
		b.WriteString(task)
		b.WriteString("\n")
	}
	b.WriteString(set.Get(incident.SlotCategoryIntro))
	b.WriteString("\n\n")
	b.WriteString(TypeList(types))
	b.WriteString("\n\n")
	b.WriteString(set.Get(incident.SlotClassifyRules))
	b.WriteString("\n")
	b.WriteString(set.Get(incident.SlotInfo))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")
	return b.String()
}

// TypeList renders one "- name: description" line per type, in the order
// given.
func TypeList(types []incident.Type) string {
	lines := make([]string, 0, len(types))
	for _, t := range types {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			name = t.Code
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", name, strings.TrimSpace(t.Description)))
	}
	return strings.Join(lines, "\n")
}

const questionTemplate = `Du bekommst einen Vorfallsbericht und eine Frage dazu.
Beantworte die Frage kurz und sachlich, ausschließlich auf Grundlage des Berichts.
Erfinde keine Angaben. Wenn der Bericht keine Information zur Frage enthält,
antworte genau mit: %s

Bericht:
%s

%s %s
Antwort:`

// Question builds the extraction prompt for one question label.
func Question(text, label string) string {
	return fmt.Sprintf(questionTemplate, NoInfoAnswer, strings.TrimSpace(text), questionMarker, strings.TrimSpace(label))
}

const synthesisTemplate = `Du bist Sachbearbeiter und verfasst einen formellen Abschlussbericht zu einem Vorfall.
Schreibe sachlich in der dritten Person und im Präteritum.
Verwende Fließtext ohne Aufzählungszeichen, Listen oder Überschriften.
Stütze dich nur auf den ursprünglichen Bericht und die erhobenen Fakten.

Ursprünglicher Bericht:
%s

Erhobene Fakten:
%s
Abschlussbericht:`

// Synthesis builds the narrative-writing prompt. Facts are grouped by
// incident type, one "key: value" line each.
func Synthesis(text string, groups []FactGroup) string {
	var facts strings.Builder
	for _, g := range groups {
		facts.WriteString("[")
		facts.WriteString(g.IncidentType)
		facts.WriteString("]\n")
		for _, f := range g.Facts {
			facts.WriteString(f.Key)
			facts.WriteString(": ")
			facts.WriteString(strings.TrimSpace(f.Value))
			facts.WriteString("\n")
		}
		facts.WriteString("\n")
	}
	return fmt.Sprintf(synthesisTemplate, strings.TrimSpace(text), facts.String())
}
