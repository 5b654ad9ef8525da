// Package json recovers JSON values from LLM output.
//
// Streaming models emit structured output a few bytes at a time, often wrapped
// in markdown fences or surrounded by commentary. This package finds the JSON
// in such text and, when the document is still incomplete, parses as much of
// it as is currently available.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON finds and returns the complete JSON portion of a response.
// It handles common LLM response patterns:
// 1. Pure JSON response - returns the full response
// 2. JSON wrapped in markdown code blocks (```json ... ```)
// 3. JSON object embedded in text - finds first '{' and last '}'
func extractJSON(response string) (string, error) {
	response = stripMarkdownCodeBlocks(response)

	if json.Valid([]byte(response)) {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end > start {
			candidate := response[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no complete JSON in response: %q", preview)
}

// stripMarkdownCodeBlocks removes markdown code fence markers.
// An opening fence without its closing fence is still removed, which is the
// normal state of a fenced document mid-stream.
func stripMarkdownCodeBlocks(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}

// valueStart returns the offset where a JSON document most likely begins:
// 0 if the text already starts with a value, else the first '{'.
func valueStart(s string) int {
	if s == "" {
		return -1
	}
	switch c := s[0]; {
	case c == '{' || c == '[' || c == '"' || c == '-' || (c >= '0' && c <= '9'):
		return 0
	case isLiteralPrefix(s):
		return 0
	}
	return strings.Index(s, "{")
}

// Extract returns the complete JSON document in a response.
func Extract(response string) (string, error) {
	return extractJSON(response)
}
