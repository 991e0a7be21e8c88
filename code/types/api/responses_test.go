package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]int{"count": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "error")
	assert.Equal(t, map[string]any{"count": float64(3)}, body["data"])
}

func TestErrorEnvelopeOmitsData(t *testing.T) {
	rec := httptest.NewRecorder()
	ServiceUnavailable(rec, "engine loading")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "engine loading", body["error"])
	assert.NotContains(t, body, "data")
}

func TestDecodeEmptyBodyKeepsDefaults(t *testing.T) {
	v := struct {
		Limit int `json:"limit"`
	}{Limit: 10}

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	require.NoError(t, Decode(req, &v))
	assert.Equal(t, 10, v.Limit)

	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"limit":5}`))
	require.NoError(t, Decode(req, &v))
	assert.Equal(t, 5, v.Limit)

	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{`))
	assert.Error(t, Decode(req, &v))
}
