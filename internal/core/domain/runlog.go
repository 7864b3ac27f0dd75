package domain

import (
	"encoding/json"
	"time"
)

// Default run-log payload caps in characters.
const (
	DefaultRunLogJSONChars  = 20000
	DefaultRunLogErrorChars = 4000
)

// previewChars is how much of an oversized payload survives truncation.
const previewChars = 500

// RunEntry is one structured trace row for a stage or model invocation.
type RunEntry struct {
	RunID      string
	CreatedAt  time.Time
	Lane       Lane
	Component  string
	Model      string
	InputJSON  string
	OutputJSON string
	Error      string
}

// truncatedPayload replaces an oversized JSON blob.
type truncatedPayload struct {
	Truncated bool   `json:"truncated"`
	Preview   string `json:"preview"`
}

// CapJSON enforces the run-log character cap on a JSON payload. Oversized
// payloads are replaced with {"truncated": true, "preview": "..."} rather
// than raising.
func CapJSON(payload string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultRunLogJSONChars
	}
	if len(payload) <= maxChars {
		return payload
	}
	preview := payload
	if len(preview) > previewChars {
		preview = preview[:previewChars]
	}
	replaced, err := json.Marshal(truncatedPayload{Truncated: true, Preview: preview})
	if err != nil {
		return `{"truncated":true}`
	}
	return string(replaced)
}

// CapError enforces the run-log character cap on an error string.
func CapError(msg string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultRunLogErrorChars
	}
	if len(msg) <= maxChars {
		return msg
	}
	return msg[:maxChars]
}
