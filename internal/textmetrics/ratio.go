// Package textmetrics compares texts, mainly a generated report against a
// reference report.
package textmetrics

import "github.com/pmezard/go-difflib/difflib"

type Options struct {
	// AutoJunk ignores elements of b that occur in more than 1% of its
	// positions, once b has at least 200 elements.
	AutoJunk bool
}

// Ratio returns 2*M/T for the two texts, where M is the number of runes in
// matching blocks and T the total rune count. Two empty texts are equal (1.0).
// Frequent runes are ignored in long texts.
func Ratio(a, b string) float64 {
	return RatioWith(a, b, Options{AutoJunk: true})
}

func RatioWith(a, b string, opts Options) float64 {
	m := difflib.NewMatcherWithJunk(splitRunes(a), splitRunes(b), opts.AutoJunk, nil)
	return m.Ratio()
}

// splitRunes turns s into one element per rune, so umlauts count once.
func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
