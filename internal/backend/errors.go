package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("backend unavailable")

// APIError is a non-2xx response from the dispatch backend.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: %d %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Temporary reports whether retrying later could succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Message returns the backend-provided message carried by err, if any.
func Message(err error) (string, bool) {
	var ae *APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message, true
	}
	return "", false
}

// errorBody covers the message fields the backend has been seen to use.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
	Title   string          `json:"title"`
	Detail  string          `json:"detail"`
}

func parseErrorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Message) > 0 {
		var s string
		if json.Unmarshal(eb.Message, &s) == nil && s != "" {
			return s
		}
		var list []string
		if json.Unmarshal(eb.Message, &list) == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
	}
	switch {
	case eb.Detail != "":
		return eb.Detail
	case eb.Error != "":
		return eb.Error
	}
	return eb.Title
}
