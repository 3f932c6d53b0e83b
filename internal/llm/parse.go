package llm

import (
	"encoding/json"
	"strings"

	"prospect/internal/core"
)

// Models wrap JSON in markdown fences, preamble text, or trailing chatter
// more often than they return it bare. The extractors below tolerate all of
// that: strip fences, locate the outermost object or array, and unmarshal
// just that slice of the response.

// StripFences removes a leading/trailing markdown code fence (``` or
// ```json) if the response is wrapped in one.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || isFenceTag(first) {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// ExtractJSONObject finds the outermost {...} in a model response and
// unmarshals it into v. Returns LlmUnparseable when no object can be decoded.
func ExtractJSONObject(raw string, v any) error {
	return extractJSON(raw, '{', '}', v)
}

// ExtractJSONArray finds the outermost [...] in a model response and
// unmarshals it into v. Errors carry the LlmUnparseable kind; callers that
// need a phase-specific kind re-wrap.
func ExtractJSONArray(raw string, v any) error {
	return extractJSON(raw, '[', ']', v)
}

func extractJSON(raw string, open, closing byte, v any) error {
	s := StripFences(raw)
	if s == "" {
		return core.E(core.KindLLMUnparseable, "empty model response")
	}

	// Fast path: the whole (de-fenced) response is the document.
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, open)
	if start < 0 {
		return core.Ef(core.KindLLMUnparseable, "no %c...%c found in model response", open, closing)
	}
	end := lastBalanced(s, start, open, closing)
	if end < 0 {
		return core.Ef(core.KindLLMUnparseable, "unbalanced %c...%c in model response", open, closing)
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return core.E(core.KindLLMUnparseable, "model response is not valid JSON", err)
	}
	return nil
}

// lastBalanced scans from the opening bracket and returns the index of the
// bracket that closes it, honoring nesting and JSON string escapes. Returns
// -1 when the document never balances.
func lastBalanced(s string, start int, open, closing byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// RepairPrompt wraps a malformed model response in a correction request. The
// aggregator sends this once before giving up on a profile extraction.
func RepairPrompt(malformed string) string {
	var b strings.Builder
	b.WriteString("The previous response was not valid JSON. ")
	b.WriteString("Re-emit it as a single valid JSON document with the same content. ")
	b.WriteString("Output only the JSON, with no markdown fences and no commentary.\n\n")
	b.WriteString("Previous response:\n")
	b.WriteString(malformed)
	return b.String()
}
