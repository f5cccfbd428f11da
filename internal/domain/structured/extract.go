// Package structured recovers typed JSON values from free-text model output.
//
// Model responses are not trusted to be valid JSON. They may be wrapped in
// markdown fences, preceded by prose, truncated by token limits, or carry
// illegal backslash escapes (common with non-Latin scripts). Extract never
// fails loudly: it returns ok=false when nothing can be recovered.
package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fenceToken = regexp.MustCompile("```[A-Za-z0-9_-]*")

// Extract returns the first outermost JSON object or array found in content,
// decoded as a generic value. A second parse is attempted after escape repair.
func Extract(content string) (any, bool) {
	raw, ok := ExtractRaw(content)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// ExtractRaw is Extract without the final decode; the returned bytes are valid JSON.
func ExtractRaw(content string) (json.RawMessage, bool) {
	cands := candidates(content)
	if len(cands) == 0 {
		return nil, false
	}
	return cands[0], true
}

// candidates lists every outermost span of content that is valid JSON as
// is or after escape repair, in order of appearance.
func candidates(content string) []json.RawMessage {
	var out []json.RawMessage
	for _, span := range jsonSpans(stripCodeFences(content)) {
		if json.Valid([]byte(span)) {
			out = append(out, json.RawMessage(span))
			continue
		}
		if repaired := RepairEscapes(span); repaired != span && json.Valid([]byte(repaired)) {
			out = append(out, json.RawMessage(repaired))
		}
	}
	return out
}

// stripCodeFences removes ``` fence tokens and their language tags, keeping
// any text on the same line.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.Contains(content, "```") {
		return content
	}
	return strings.TrimSpace(fenceToken.ReplaceAllString(content, ""))
}

// jsonSpans returns the balanced outermost {...} and [...] spans of content,
// honoring string literals so braces inside strings do not count. Scanning
// stops at an opener that is never closed.
func jsonSpans(content string) []string {
	var spans []string
	for pos := 0; pos < len(content); {
		rel := strings.IndexAny(content[pos:], "{[")
		if rel < 0 {
			break
		}
		start := pos + rel
		end := spanEnd(content, start)
		if end < 0 {
			break
		}
		spans = append(spans, content[start:end])
		pos = end
	}
	return spans
}

// spanEnd returns the index just past the bracket closing the opener at
// start, or -1 when it is never closed.
func spanEnd(content string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// RepairEscapes rewrites every backslash that does not start a legal JSON
// escape into the character that follows it.
func RepairEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			break
		}
		next := s[i+1]
		switch next {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
			b.WriteByte('\\')
			b.WriteByte(next)
		default:
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}
