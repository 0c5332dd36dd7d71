package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "strand/pkg/domain-errors"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type plainRequest struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type preparedRequest struct {
	Name       string `json:"name"`
	normalized bool
}

func (r *preparedRequest) Normalize() {
	r.normalized = true
	r.Name = strings.TrimSpace(r.Name)
}

func (r *preparedRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type domainRequest struct {
	ID string `json:"id"`
}

func (r *domainRequest) Validate() error {
	if r.ID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "id is required")
	}
	return nil
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	ctx := context.Background()

	w := httptest.NewRecorder()
	got, ok := DecodeJSON[plainRequest](w, post(`{"name":"strand","value":42}`), discard, ctx, "req-1")
	require.True(t, ok)
	assert.Equal(t, "strand", got.Name)
	assert.Equal(t, 42, got.Value)

	cases := map[string]struct {
		body string
		desc string
	}{
		"malformed": {`{oops}`, "invalid request body"},
		"empty":     {``, "request body is required"},
		"trailing":  {`{"name":"a"} {"name":"b"}`, "invalid request body"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			got, ok := DecodeJSON[plainRequest](w, post(tc.body), discard, ctx, "req-1")
			assert.False(t, ok)
			assert.Nil(t, got)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := errorBody(t, w)
			assert.Equal(t, ErrorBadRequest, body["error"])
			assert.Equal(t, tc.desc, body["error_description"])
		})
	}
}

func TestDecodeJSON_OversizedBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := post(`{"name":"` + strings.Repeat("x", 128) + `"}`)
	r.Body = http.MaxBytesReader(w, r.Body, 32)

	_, ok := DecodeJSON[plainRequest](w, r, discard, context.Background(), "req-1")
	assert.False(t, ok)
	assert.Equal(t, "request body too large", errorBody(t, w)["error_description"])
}

func TestDecodeAndPrepare(t *testing.T) {
	ctx := context.Background()

	w := httptest.NewRecorder()
	got, ok := DecodeAndPrepare[preparedRequest](w, post(`{"name":"  strand  "}`), discard, ctx, "req-1")
	require.True(t, ok)
	assert.True(t, got.normalized)
	assert.Equal(t, "strand", got.Name)

	w = httptest.NewRecorder()
	_, ok = DecodeAndPrepare[preparedRequest](w, post(`{"name":"   "}`), discard, ctx, "req-1")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name is required", errorBody(t, w)["error_description"])
}

func TestDecodeAndPrepare_PreservesDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	_, ok := DecodeAndPrepare[domainRequest](w, post(`{"id":""}`), discard, context.Background(), "req-1")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, ErrorBadRequest, body["error"])
	assert.Equal(t, "id is required", body["error_description"])
}

func TestPrepareRequest_IgnoresPlainTypes(t *testing.T) {
	assert.NoError(t, PrepareRequest(&plainRequest{}))
}
