package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"dispatchdesk/internal/auth"
	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/dispatch"
	"dispatchdesk/internal/draft"
	"dispatchdesk/internal/pool"
	"dispatchdesk/internal/store"
	"dispatchdesk/internal/transform"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

const maxBody = 1 << 20

// decodeJSON reads a JSON body into v and validates it.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &badRequest{msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return validateStruct(v)
}

type badRequest struct {
	msg    string
	fields map[string]string
}

func (e *badRequest) Error() string { return e.msg }

// problemFor maps an error from any layer to a status and title. The detail
// is the error text, which carries the backend's message when it sent one.
func problemFor(err error) (int, string, string) {
	var br *badRequest
	var ae *backend.APIError
	var se *transform.StructuralError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, "Invalid request", br.msg
	case errors.Is(err, dispatch.ErrValidation):
		return http.StatusBadRequest, "Invalid selection", dispatch.UserMessage(err)
	case errors.Is(err, draft.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found", err.Error()
	case draft.IsNoOp(err):
		return http.StatusNotFound, "Nothing changed", err.Error()
	case errors.Is(err, draft.ErrDriverNotFound):
		return http.StatusUnprocessableEntity, "Unknown driver", err.Error()
	case errors.Is(err, draft.ErrEmptySelection), errors.Is(err, draft.ErrSameJob):
		return http.StatusUnprocessableEntity, "Invalid edit", err.Error()
	case errors.Is(err, draft.ErrJobDispatched):
		return http.StatusConflict, "Job is read-only", err.Error()
	case errors.Is(err, draft.ErrStale), errors.Is(err, draft.ErrBusy), errors.Is(err, draft.ErrStaleResult):
		return http.StatusConflict, "Session conflict", err.Error()
	case errors.Is(err, draft.ErrClosed):
		return http.StatusGone, "Session closed", err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not Found", err.Error()
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownMode):
		return http.StatusUnauthorized, "Unauthorized", err.Error()
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusServiceUnavailable, "Backend unavailable", err.Error()
	case errors.As(err, &ae):
		return http.StatusBadGateway, "Backend request failed", dispatch.UserMessage(err)
	case errors.As(err, &se):
		return http.StatusBadGateway, "Malformed backend response", dispatch.UserMessage(err)
	case errors.Is(err, pool.ErrPoolUnavailable):
		return http.StatusBadGateway, "Pool unavailable", err.Error()
	}
	return http.StatusInternalServerError, "Internal error", dispatch.UserMessage(err)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, title, detail := problemFor(err)
	if status >= 500 {
		s.logger(r).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	p := Problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Instance: r.URL.Path}
	var br *badRequest
	if errors.As(err, &br) {
		p.Fields = br.fields
	}
	writeJSON(w, status, p)
}
