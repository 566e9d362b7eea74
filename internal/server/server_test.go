package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sourcecheck/internal/backend"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
)

type stubRunner struct {
	report *model.Report
	err    error
	got    pipeline.Request
}

func (s *stubRunner) Run(ctx context.Context, req pipeline.Request) (*model.Report, error) {
	s.got = req
	return s.report, s.err
}

func newTestHandler(runner Runner) http.Handler {
	state := pipeline.NewStateHolder("test", backend.NewLexical())
	state.Refresh(context.Background(), backend.NewLexical())
	s := &Server{runner: runner, state: state, maxBody: 1 << 16}
	return s.Routes()
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestValidate_EndToEnd(t *testing.T) {
	h := newTestHandler(pipeline.NewEngine(pipeline.Options{}))

	w := post(t, h, `{
		"source_text": "Patient presents with chest pain for 2 days.",
		"claims": {"chief_complaint": "Chest pain for 2 days"},
		"schema": {"fields": [{"name": "chief_complaint"}]},
		"policies": {"retrieval": {"top_k": 2}}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var report model.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.TotalClaims)
	require.Len(t, report.Dispositions, 1)
	assert.Equal(t, model.VerdictSupported, report.Dispositions[0].Verdict)
	assert.LessOrEqual(t, len(report.Dispositions[0].Evidence), 2)
}

func TestValidate_DefaultsPolicies(t *testing.T) {
	runner := &stubRunner{report: &model.Report{Dispositions: []model.ClaimDisposition{}}}
	h := newTestHandler(runner)

	w := post(t, h, `{"source_text": "text", "claims": "free text", "schema": {"fields": [{"name": "body"}]}}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, model.DefaultPolicy(), runner.got.Policies)
	assert.JSONEq(t, `"free text"`, string(runner.got.Claims.(json.RawMessage)))
}

func TestValidate_MissingSourceText(t *testing.T) {
	h := newTestHandler(&stubRunner{})

	w := post(t, h, `{"claims": {}, "schema": {"fields": [{"name": "a"}]}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e := decodeError(t, w)
	assert.Equal(t, model.KindInput, e.Kind)
	assert.Equal(t, "source_text", e.Field)
}

func TestValidate_MalformedBody(t *testing.T) {
	h := newTestHandler(&stubRunner{})

	w := post(t, h, `{"source_text": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.KindInput, decodeError(t, w).Kind)
}

func TestValidate_BodyTooLarge(t *testing.T) {
	h := newTestHandler(&stubRunner{})

	w := post(t, h, `{"source_text": "`+strings.Repeat("x", 1<<17)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body too large", decodeError(t, w).Message)
}

func TestValidate_SchemaError(t *testing.T) {
	h := newTestHandler(pipeline.NewEngine(pipeline.Options{}))

	w := post(t, h, `{"source_text": "text", "claims": {}, "schema": {"version": "1"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, model.KindSchema, decodeError(t, w).Kind)
}

func TestValidate_InternalErrorIsGeneric(t *testing.T) {
	h := newTestHandler(&stubRunner{err: errors.New("nil pointer in /srv/secret/path.go")})

	w := post(t, h, `{"source_text": "text"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")

	e := decodeError(t, w)
	assert.Equal(t, model.KindInternal, e.Kind)
	assert.Equal(t, "internal error", e.Message)
	assert.NotEmpty(t, e.RequestID)
	assert.Equal(t, w.Header().Get("X-Request-Id"), e.RequestID)
}

func TestValidate_KeepsClientRequestID(t *testing.T) {
	h := newTestHandler(&stubRunner{err: errors.New("boom")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(`{"source_text": "text"}`))
	req.Header.Set("X-Request-Id", "client-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "client-42", decodeError(t, w).RequestID)
}

func TestValidate_WrappedCauseNotExposed(t *testing.T) {
	cause := errors.New("upstream said 401 for key sk-abc")
	h := newTestHandler(&stubRunner{err: model.Wrap(model.KindRetrieval, "chief_complaint", "semantic scoring failed", cause)})

	w := post(t, h, `{"source_text": "text"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-abc")
	assert.Equal(t, "semantic scoring failed", decodeError(t, w).Message)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(model.KindInput))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(model.KindSchema))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(model.KindPolicy))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(model.KindTimeout))
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.KindInternal))
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubRunner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var state pipeline.ServiceState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, pipeline.StatusOK, state.Status)
	assert.Equal(t, "test", state.Version)
	assert.Equal(t, "lexical", state.Backend)
	assert.True(t, state.BackendReady)
	assert.WithinDuration(t, time.Now(), state.StartedAt, time.Minute)
}

func TestMetrics(t *testing.T) {
	h := newTestHandler(pipeline.NewEngine(pipeline.Options{}))
	post(t, h, `{"source_text": "Fever.", "claims": {"a": "fever"}, "schema": {"fields": [{"name": "a"}]}}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sourcecheck_runs_total")
}

func TestNew(t *testing.T) {
	cfg := model.DefaultConfig().Server
	srv := New(cfg, &stubRunner{}, pipeline.NewStateHolder("test", backend.NewLexical()))
	assert.Equal(t, ":8000", srv.Addr)
	assert.Equal(t, cfg.WriteTimeout, srv.WriteTimeout)
	assert.NotNil(t, srv.Handler)
}
