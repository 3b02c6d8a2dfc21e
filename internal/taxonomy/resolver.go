package taxonomy

import (
	"strings"

	"go.uber.org/zap"

	"reportanalyzer/internal/incident"
)

// noneTokens are model answers meaning "no category applies". They are never
// mapped to a type.
var noneTokens = map[string]struct{}{
	"keiner": {},
	"keine":  {},
	"none":   {},
}

// Resolver maps raw model output names onto canonical incident type codes.
// It is built from one registry snapshot and never changes afterwards, so it
// is safe for concurrent use.
type Resolver struct {
	table map[string]string
	log   *zap.Logger
}

// NewResolver indexes types by normalized name and by normalized code.
// Codes are indexed first so that a name colliding with another type's code
// cannot shadow it.
func NewResolver(types []incident.Type, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.L()
	}
	table := make(map[string]string, len(types)*2)
	for _, t := range types {
		code := incident.NormalizeKey(t.Code)
		if code == "" {
			continue
		}
		table[code] = code
	}
	for _, t := range types {
		code := incident.NormalizeKey(t.Code)
		name := incident.NormalizeKey(t.Name)
		if code == "" || name == "" {
			continue
		}
		if _, taken := table[name]; taken {
			continue
		}
		table[name] = code
	}
	return &Resolver{table: table, log: log}
}

// Lookup returns the code registered for a single raw name.
func (r *Resolver) Lookup(raw string) (string, bool) {
	code, ok := r.table[incident.NormalizeKey(raw)]
	return code, ok
}

// Resolve maps raw names to codes in input order. Duplicates are kept.
// Unknown names are logged and dropped; when nothing resolves the result is
// the single code incident.UnknownCode.
func (r *Resolver) Resolve(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		key := incident.NormalizeKey(name)
		if key == "" || IsNone(key) {
			continue
		}
		code, ok := r.Lookup(key)
		if !ok {
			r.log.Warn("taxonomy: dropping unknown incident type", zap.String("name", name))
			continue
		}
		out = append(out, code)
	}
	if len(out) == 0 {
		return []string{incident.UnknownCode}
	}
	return out
}

// IsNone reports whether s is a "no category" answer.
func IsNone(s string) bool {
	_, ok := noneTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Dedup keeps the first occurrence of every code.
func Dedup(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
