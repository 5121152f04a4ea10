package agent

import (
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var errNoJSONObject = errors.New("no JSON object found")

// stripCodeFence removes a surrounding Markdown code fence from model output.
func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// extractJSONArray parses the first balanced '[...]' span as a list of strings.
func extractJSONArray(raw string) ([]string, bool) {
	span, ok := balancedSpan(raw, '[', ']')
	if !ok {
		return nil, false
	}

	var values []string
	if err := json.Unmarshal([]byte(span), &values); err != nil {
		return nil, false
	}
	return values, true
}

// extractJSONObject decodes the first balanced '{...}' span into out.
func extractJSONObject(raw string, out any) error {
	span, ok := balancedSpan(raw, '{', '}')
	if !ok {
		return errNoJSONObject
	}
	return json.Unmarshal([]byte(span), out)
}

// balancedSpan returns the substring from the first open delimiter to its
// matching close. Delimiters inside JSON string literals are not counted.
func balancedSpan(raw string, open, close byte) (string, bool) {
	start := strings.IndexByte(raw, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// normalizeQueries trims, NFC-normalizes and de-duplicates queries
// case-insensitively, keeping first-seen order. limit <= 0 keeps everything.
func normalizeQueries(queries []string, limit int) []string {
	unique := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		trimmed := strings.TrimSpace(norm.NFC.String(q))
		trimmed = strings.Trim(trimmed, "\"'`")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, trimmed)
		if limit > 0 && len(unique) >= limit {
			break
		}
	}
	return unique
}
