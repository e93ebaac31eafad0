package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"briefsmith/internal/services"
)

const snippetLimit = 160

// DecodeLLMJSON decodes the first JSON object or array found in content into
// target. Code fences and surrounding prose are ignored. Every failure wraps
// services.ErrTransient since a fresh completion usually parses.
func DecodeLLMJSON(content string, target any) error {
	body := unfence(strings.TrimSpace(content))
	if body == "" {
		return fmt.Errorf("%w: empty payload", services.ErrTransient)
	}

	var firstErr error
	for offset := 0; offset < len(body); {
		idx := strings.IndexAny(body[offset:], "{[")
		if idx < 0 {
			break
		}
		start := offset + idx
		raw, err := firstValue(body[start:])
		if err == nil {
			if err = json.Unmarshal(raw, target); err == nil {
				return nil
			}
		}
		if firstErr == nil {
			firstErr = err
		}
		offset = start + 1
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("no JSON value found")
	}
	return fmt.Errorf("%w: %w (payload snippet: %s)", services.ErrTransient, firstErr, snippet(body))
}

// firstValue returns the complete JSON value at the start of s, ignoring
// anything after it.
func firstValue(s string) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// unfence strips a surrounding ``` or ```json block.
func unfence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimLeft(strings.TrimPrefix(s, "```"), " \t")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return clean
}
