package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractFirstJSONObject returns the first balanced {...} block in s,
// ignoring braces inside JSON strings. Models often wrap JSON in prose or
// code fences.
func ExtractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// DecodeJSON extracts the first JSON object from model output into v.
func DecodeJSON(text string, v any) error {
	js := ExtractFirstJSONObject(text)
	if js == "" {
		return fmt.Errorf("model did not return JSON object")
	}
	if err := json.Unmarshal([]byte(js), v); err != nil {
		return fmt.Errorf("model JSON parse failed: %w; raw=%s", err, Truncate(js, 800))
	}
	return nil
}

func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
