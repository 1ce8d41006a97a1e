package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmind/agentrt/internal/checkpoint"
	"github.com/flowmind/agentrt/internal/lifecycle"
	"github.com/flowmind/agentrt/internal/repo"
	"github.com/flowmind/agentrt/internal/store"
)

func TestWriteErrorMapsKnownErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", repo.ErrNotFound, http.StatusNotFound},
		{"checkpoint not found", checkpoint.ErrNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"conflict", repo.ErrConflict, http.StatusConflict},
		{"thread busy", lifecycle.ErrThreadBusy, http.StatusConflict},
		{"validation", invalidBody("bad"), http.StatusUnprocessableEntity},
		{"missing field", missingField("key"), http.StatusUnprocessableEntity},
		{"unknown", errUnmapped{}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			require.Equal(t, tc.want, rec.Code)
			require.Contains(t, rec.Body.String(), "detail")
		})
	}
}

type errUnmapped struct{}

func (errUnmapped) Error() string { return "unmapped" }

func TestWriteErrorMissingFieldIncludesFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, missingField("assistant_id"))
	body := rec.Body.String()
	require.Contains(t, body, `"field":"assistant_id"`)
	require.Contains(t, body, `"error":"required"`)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown_field": 1}`))
	var dst struct {
		Known string `json:"known"`
	}
	err := decodeJSON(req, &dst)
	require.Error(t, err)
}

func TestDecodeJSONRejectsNilBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Body = nil
	var dst map[string]any
	err := decodeJSON(req, &dst)
	require.Error(t, err)
}

func TestDecodeJSONLenientToleratesEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	var dst filterBody
	err := decodeJSONLenient(req, &dst)
	require.NoError(t, err)
	require.Equal(t, filterBody{}, dst)
}

func TestDecodeJSONLenientStillValidatesNonEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit": "not-a-number"}`))
	req.ContentLength = int64(len(`{"limit": "not-a-number"}`))
	var dst filterBody
	err := decodeJSONLenient(req, &dst)
	require.Error(t, err)
}
