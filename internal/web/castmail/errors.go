package castmail

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is returned for non-success backend responses
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Detail)
}

// parseErrorDetail extracts a human readable message from an error body.
// Backends report it as "detail", "error" or "message".
func parseErrorDetail(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// UserMessage returns the text shown to the user for a failed call:
// the backend detail when it supplied one, the fallback otherwise.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}
