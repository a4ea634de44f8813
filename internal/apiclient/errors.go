package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonathan/assessment-wizard/internal/fetch"
)

// ErrRequestTooLarge is returned when a request body exceeds its size cap.
var ErrRequestTooLarge = errors.New("request body too large")

// maxDetailLen bounds error text taken from response bodies.
const maxDetailLen = 300

// APIError is a non-2xx response from the assessment API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
	Detail string
}

func (e *APIError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = http.StatusText(e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, detail)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// DecodeError is returned when a 2xx response does not have the expected shape.
type DecodeError struct {
	Path   string
	Schema string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("malformed response from %s (%s): %v", e.Path, e.Schema, e.Cause)
	}
	return fmt.Sprintf("malformed response from %s: %v", e.Path, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// newAPIError builds an APIError, extracting a readable detail from the body.
func newAPIError(method, path string, status int, contentType string, body []byte) *APIError {
	return &APIError{
		Method: method,
		Path:   path,
		Status: status,
		Body:   string(body),
		Detail: parseDetail(contentType, body),
	}
}

// parseDetail reads FastAPI-style error bodies: {"detail": "..."},
// {"detail": [{"msg": "..."}]} or {"message": "..."}. Anything else is
// reduced to text.
func parseDetail(contentType string, body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if detail := detailText(payload.Detail); detail != "" {
			return detail
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fetch.ErrorText(contentType, body, maxDetailLen)
}

func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if field := locField(it.Loc); field != "" {
				msgs = append(msgs, field+": "+it.Msg)
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// locField renders a validation location, dropping the leading "body" segment.
func locField(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, l := range loc {
		s := fmt.Sprint(l)
		if i == 0 && (s == "body" || s == "query" || s == "path") {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}
