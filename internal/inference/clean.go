package inference

import (
	"encoding/json"
	"strings"
)

// thinkingSentinel delimits the model's reasoning preamble. Everything
// up to and including it is discarded.
const thinkingSentinel = "<unused95>"

// CleanResponse turns raw model text into the best JSON candidate:
// strip the thinking preamble, strip markdown fences, then scan for
// balanced {...} spans that parse and carry an expected top-level key.
// Falls back to the cleaned text so callers own parse failure; never errors.
func CleanResponse(raw string) string {
	if idx := strings.Index(raw, thinkingSentinel); idx >= 0 {
		raw = strings.TrimSpace(raw[idx+len(thinkingSentinel):])
	}

	stripped := strings.TrimSpace(raw)
	if strings.HasPrefix(stripped, "```") {
		if _, rest, found := strings.Cut(stripped, "\n"); found {
			stripped = rest
		}
		trimmed := strings.TrimRight(stripped, " \t\n")
		if strings.HasSuffix(trimmed, "```") {
			stripped = strings.TrimRight(strings.TrimSuffix(trimmed, "```"), " \t\n")
		}
	}

	if strings.HasPrefix(stripped, "{") && strings.HasSuffix(stripped, "}") {
		return stripped
	}

	candidates := balancedObjects(stripped)
	// The answer usually sits at the end of the response.
	for i := len(candidates) - 1; i >= 0; i-- {
		var parsed map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidates[i]), &parsed); err != nil {
			continue
		}
		if _, ok := parsed["medicamentos"]; ok {
			return candidates[i]
		}
		if _, ok := parsed["resultados"]; ok {
			return candidates[i]
		}
	}

	return stripped
}

// balancedObjects collects top-level balanced {...} spans.
func balancedObjects(s string) []string {
	var candidates []string
	depth := 0
	start := -1
	for i, ch := range s {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}
