package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseFailure is returned when every repair candidate for a model response
// fails to parse. It carries the original text so callers can log and skip
// the unit without aborting a batch.
type ParseFailure struct {
	Raw string
	Err error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparseable model output: %v", e.Err)
	}
	return "unparseable model output"
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// ParseObject extracts a JSON object from raw model output. It tolerates
// markdown code fences, surrounding prose, and bare LaTeX backslashes inside
// string values. It never panics: either an object or a *ParseFailure.
func ParseObject(raw string) (map[string]any, error) {
	for _, cand := range parseCandidates(raw) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(cand), &obj); err == nil {
			return obj, nil
		}
	}
	return nil, &ParseFailure{Raw: raw}
}

// DecodeObject runs the same candidate ladder as ParseObject and unmarshals
// the first syntactically valid candidate into dest.
func DecodeObject(raw string, dest any) error {
	for _, cand := range parseCandidates(raw) {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(cand), &probe); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(cand), dest); err != nil {
			return &ParseFailure{Raw: raw, Err: err}
		}
		return nil
	}
	return &ParseFailure{Raw: raw}
}

// parseCandidates builds the ordered repair ladder: the trimmed text, the
// backslash-repaired text, the first greedy {...} substring, and that
// substring repaired. Attempted in order; first parse wins.
func parseCandidates(raw string) []string {
	trimmed := stripCodeFences(strings.TrimSpace(raw))
	candidates := []string{trimmed, RepairBackslashes(trimmed)}
	if sub, ok := braceSubstring(trimmed); ok && sub != trimmed {
		candidates = append(candidates, sub, RepairBackslashes(sub))
	}
	return candidates
}

func stripCodeFences(s string) string {
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```json"))
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// braceSubstring returns the greedy substring from the first '{' to the last
// '}', the usual shape of an object wrapped in prose.
func braceSubstring(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// RepairBackslashes doubles every backslash that is not part of a valid JSON
// escape sequence, so LaTeX commands like \mathrm or \Delta inside string
// values survive json.Unmarshal. Single left-to-right pass: a valid escape
// pair is copied whole and never re-examined, which also makes the transform
// idempotent on already-valid input.
func RepairBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
				continue
			}
		}
		b.WriteString(`\\`)
	}
	return b.String()
}
