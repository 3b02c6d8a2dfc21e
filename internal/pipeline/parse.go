package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// OutcomeKind tags how a classification answer was parsed.
type OutcomeKind string

const (
	// Structured means the answer contained a well-formed list.
	Structured OutcomeKind = "structured"
	// Degraded means the list was recovered by splitting free text.
	Degraded OutcomeKind = "degraded"
)

// Classification is the parsed classification answer. Items are normalized
// and never empty strings.
type Classification struct {
	Kind  OutcomeKind
	Items []string
	Raw   string
}

var (
	fenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	preambleRe = regexp.MustCompile(`^\p{L}[\p{L} ]{0,40}:\s*`)
)

// ParseClassification reads a list of type names from model output. A JSON
// list anywhere in the text wins; otherwise the text is split on commas and
// line breaks, keeping only the bracketed span when one exists.
func ParseClassification(raw string) Classification {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if items, ok := parseList(text); ok {
		return Classification{Kind: Structured, Items: items, Raw: raw}
	}
	return Classification{Kind: Degraded, Items: splitFree(degradedBody(text)), Raw: raw}
}

// degradedBody drops a leading "Label:" preamble, or everything outside the
// brackets when the text carries a list that is not valid JSON.
func degradedBody(text string) string {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start >= 0 && end > start {
		return text[start+1 : end]
	}
	return preambleRe.ReplaceAllString(text, "")
}

func parseList(text string) ([]string, bool) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := text[start : end+1]

	var elems []any
	if err := json.Unmarshal([]byte(candidate), &elems); err != nil {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(candidate, "'", `"`)), &elems); err != nil {
			return nil, false
		}
	}
	items := make([]string, 0, len(elems))
	for _, e := range elems {
		var s string
		switch v := e.(type) {
		case string:
			s = v
		case nil:
			continue
		default:
			s = fmt.Sprint(v)
		}
		if s = normalizeItem(s); s != "" {
			items = append(items, s)
		}
	}
	return items, true
}

func splitFree(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := normalizeItem(p); s != "" {
			items = append(items, s)
		}
	}
	return items
}

// normalizeItem lower-cases s and strips whitespace, quotes, list bullets and
// trailing punctuation.
func normalizeItem(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*•[ \t")
	s = strings.TrimRight(s, ".!] \t")
	s = strings.Trim(s, "\"'`“”„ ")
	return strings.ToLower(strings.TrimSpace(s))
}
