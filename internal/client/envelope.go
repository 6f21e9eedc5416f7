package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non 2xx response or an envelope reporting failure.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

func newAPIError(req *http.Request, status int, body []byte) *APIError {
	return &APIError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: status,
		Message:    errorMessage(body),
	}
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// envelope is the {success, message, data} wrapper the backend puts around
// most payloads.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// values is the {$values: [...]} wrapper around collections.
type values struct {
	Values json.RawMessage `json:"$values"`
}

var errEnvelopeFailure = errors.New("backend reported failure")

// unwrap returns the payload of body, removing the envelope when present.
func unwrap(body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return body, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	_, hasData := fields["data"]
	_, hasSuccess := fields["success"]
	if !hasData && !hasSuccess {
		return body, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}

	if env.Success != nil && !*env.Success {
		if env.Message != "" {
			return nil, fmt.Errorf("%w: %s", errEnvelopeFailure, env.Message)
		}
		return nil, errEnvelopeFailure
	}

	return env.Data, nil
}

// decode unmarshals the payload of body into v.
func decode(body []byte, v any) error {
	data, err := unwrap(body)
	if err != nil {
		return err
	}
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("empty response payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}

// decodeList unmarshals a collection payload, accepting {$values: [...]} or a bare array.
func decodeList[T any](body []byte) ([]T, error) {
	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return []T{}, nil
	}

	if data[0] == '{' {
		var wrapped values
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode collection: %w", err)
		}
		data = wrapped.Values
		if len(data) == 0 || string(data) == "null" {
			return []T{}, nil
		}
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Title   string `json:"title"`
	}
	if body[0] == '"' {
		var msg string
		if err := json.Unmarshal(body, &msg); err == nil {
			return msg
		}
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		if body[0] == '{' || body[0] == '[' || body[0] == '<' {
			return ""
		}
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}

	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Error != "":
		return payload.Error
	default:
		return payload.Title
	}
}
