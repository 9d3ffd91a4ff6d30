// Package testutil provides request builders and response assertions for
// handler and router tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ErrorBody mirrors the envelope written by httputil.WriteError.
type ErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Field       string `json:"field"`
}

// NewJSONRequest marshals body (when non-nil) and sets the JSON content type.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewRequestWithBody sends body verbatim, for malformed payloads.
func NewRequestWithBody(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Response pairs a recorder with a copy of its body so the body can be
// decoded more than once.
type Response struct {
	Recorder *httptest.ResponseRecorder
	Body     []byte
}

// Do executes req against handler and snapshots the body.
func Do(t *testing.T, handler http.Handler, req *http.Request) *Response {
	t.Helper()
	rr := DoRequest(handler, req)
	return &Response{Recorder: rr, Body: bytes.Clone(rr.Body.Bytes())}
}

// JSON decodes the body as a JSON object.
func (r *Response) JSON(t *testing.T) map[string]any {
	t.Helper()
	return decodeObject(t, r.Body)
}

// UnmarshalErrorResponse decodes the error envelope. The recorder body is left
// unread.
func UnmarshalErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "response is not an error envelope: %s", rr.Body.String())
	return body
}

func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code, body: %s", rr.Body.String())
}

func AssertStatusOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	AssertStatus(t, rr, http.StatusOK)
}

// AssertStatusAndError checks the status and the envelope's error code.
func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	AssertStatus(t, rr, status)
	assert.Equal(t, code, UnmarshalErrorResponse(t, rr).Error, "unexpected error code")
}

// AssertFieldError checks for a 400 validation error naming field.
func AssertFieldError(t *testing.T, rr *httptest.ResponseRecorder, field string) {
	t.Helper()
	AssertStatus(t, rr, http.StatusBadRequest)
	body := UnmarshalErrorResponse(t, rr)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, field, body.Field, "unexpected field in %q", body.Description)
}

// AssertJSONContains checks a top-level key of a JSON object body.
func AssertJSONContains(t *testing.T, rr *httptest.ResponseRecorder, key string, expected any) {
	t.Helper()
	got := decodeObject(t, rr.Body.Bytes())
	assert.Equal(t, expected, got[key], "unexpected value for key %q", key)
}

func decodeObject(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "response is not a JSON object: %s", raw)
	return out
}
