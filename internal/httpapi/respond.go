package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/lifecycle"
	"github.com/flowmind/agentrt/internal/repo"
	"github.com/flowmind/agentrt/internal/store"
)

// validationError carries the optional per-field detail spec §7 allows
// on a 422 response.
type validationError struct {
	Message string
	Fields  []fieldError
}

type fieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *validationError) Error() string { return e.Message }

func invalidBody(msg string) error { return &validationError{Message: msg} }

func missingField(field string) error {
	return &validationError{
		Message: "validation failed",
		Fields:  []fieldError{{Field: field, Error: "required"}},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps a domain error to the HTTP taxonomy in spec §7 and
// writes the corresponding `{"detail": ...}` (optionally `fields`) body.
func writeError(w http.ResponseWriter, err error) {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		body := map[string]any{"detail": verr.Message}
		if len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)

	case errors.Is(err, repo.ErrNotFound),
		errors.Is(err, checkpoint.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "not found")

	case errors.Is(err, repo.ErrConflict):
		writeDetail(w, http.StatusConflict, "resource already exists")

	case errors.Is(err, lifecycle.ErrThreadBusy):
		writeDetail(w, http.StatusConflict, "thread has an active run")

	default:
		writeDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return invalidBody("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidBody("malformed request body: " + err.Error())
	}
	return nil
}

// decodeJSONLenient is like decodeJSON but tolerates an empty body,
// leaving dst at its zero value; used by search/count endpoints where an
// empty filter is a valid "match everything" request.
func decodeJSONLenient(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidBody("malformed request body: " + err.Error())
	}
	return nil
}
