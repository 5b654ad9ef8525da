package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/aecheck/config"
	"github.com/richinex/aecheck/llm"
	"github.com/richinex/aecheck/storage"
	"github.com/richinex/aecheck/stream"
	"github.com/richinex/aecheck/workflow"
)

// fakeStreamer answers every call with the model id in two increments.
type fakeStreamer struct {
	mu    sync.Mutex
	calls []stream.Call
}

func (f *fakeStreamer) Stream(ctx context.Context, call stream.Call, out chan<- stream.Increment) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	for _, content := range []string{"answer", "answer from " + call.Model.ID} {
		select {
		case out <- stream.Increment{Content: content}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeStreamer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testSettings(t *testing.T, yaml string) *config.Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aecheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	settings, err := config.Load(path)
	require.NoError(t, err)
	return settings
}

func newTestServer(t *testing.T, settings *config.Settings, transport TransportFunc, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := settings.Catalog()
	defaults, err := settings.WorkflowDefaults(catalog)
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Settings:  settings,
		Catalog:   catalog,
		Registry:  llm.NewGatewayRegistry("http://gateway.test", settings.AdapterOptions()),
		Table:     workflow.PharmacovigilanceTable(),
		Defaults:  defaults,
		Forms:     storage.NewInMemoryStorage(),
		Transport: transport,
	}, opts...)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, router http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sessionFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestModelsEndpoint(t *testing.T) {
	srv := newTestServer(t, testSettings(t, "{}"), StaticTransport(&fakeStreamer{}))
	w := do(t, srv.Router(), http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var models []modelInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &models))
	require.Len(t, models, llm.DefaultCatalog().Len())
	assert.Equal(t, modelInfo{Index: 0, Provider: "openai", Model: "gpt-4o-mini", Name: "OpenAI: GPT 4o Mini ($0.15)"}, models[0])
}

func TestStepsEndpoint(t *testing.T) {
	srv := newTestServer(t, testSettings(t, "{}"), StaticTransport(&fakeStreamer{}))
	w := do(t, srv.Router(), http.MethodGet, "/api/steps", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Steps  []stepInfo `json:"steps"`
		Schema string     `json:"schema"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Steps, 8)
	assert.Equal(t, workflow.BasicAnalysis, resp.Steps[0].Title)
	assert.Empty(t, resp.Steps[0].Uses)
	assert.NotEmpty(t, resp.Steps[0].DefaultPrompt)
	assert.Equal(t, workflow.PharmacovigilanceSummary, resp.Steps[7].Title)
	assert.Contains(t, resp.Schema, "adverse_events")
}

func TestSessionCookieIssuedOnce(t *testing.T) {
	srv := newTestServer(t, testSettings(t, "{}"), StaticTransport(&fakeStreamer{}))
	router := srv.Router()

	w := do(t, router, http.MethodGet, "/api/samples", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionFrom(t, w)
	assert.True(t, cookie.HttpOnly)

	var samples []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &samples))
	assert.Len(t, samples, 10)

	again := do(t, router, http.MethodGet, "/api/samples", nil, cookie)
	assert.Empty(t, again.Result().Cookies())
	assert.Equal(t, 1, srv.sessions.len())

	forged := do(t, router, http.MethodGet, "/api/samples", nil, &http.Cookie{Name: sessionCookie, Value: "not-a-uuid"})
	assert.NotEqual(t, cookie.Value, sessionFrom(t, forged).Value)
}

func TestFormRoundTrip(t *testing.T) {
	srv := newTestServer(t, testSettings(t, "{}"), StaticTransport(&fakeStreamer{}))
	router := srv.Router()

	type formResponse struct {
		Form  storage.Form `json:"form"`
		Saved bool         `json:"saved"`
	}

	w := do(t, router, http.MethodGet, "/api/form", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionFrom(t, w)

	var initial formResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &initial))
	assert.False(t, initial.Saved)
	assert.Equal(t, -1, initial.Form.Sample)
	assert.NotEmpty(t, initial.Form.Prompts[workflow.JudgeBasicAnalysis])
	assert.NotEmpty(t, initial.Form.Schema)

	put := do(t, router, http.MethodPut, "/api/form", map[string]any{
		"narrative": "Rash after dose 3.",
		"prompts":   map[string]string{workflow.BasicAnalysis: "Custom prompt."},
		"models":    map[string]int{workflow.BasicAnalysis: 2},
		"slowDown":  true,
		"sample":    4,
	}, cookie)
	require.Equal(t, http.StatusNoContent, put.Code)

	w = do(t, router, http.MethodGet, "/api/form", nil, cookie)
	var saved formResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.True(t, saved.Saved)
	assert.Equal(t, "Rash after dose 3.", saved.Form.Narrative)
	assert.Equal(t, "Custom prompt.", saved.Form.Prompts[workflow.BasicAnalysis])
	assert.Equal(t, initial.Form.Prompts[workflow.JudgeBasicAnalysis], saved.Form.Prompts[workflow.JudgeBasicAnalysis])
	assert.Equal(t, 2, saved.Form.Models[workflow.BasicAnalysis])
	assert.Equal(t, 4, saved.Form.Sample)
	assert.True(t, saved.Form.SlowDown)

	// Another browser does not see it.
	other := do(t, router, http.MethodGet, "/api/form", nil)
	var fresh formResponse
	require.NoError(t, json.Unmarshal(other.Body.Bytes(), &fresh))
	assert.False(t, fresh.Saved)

	bad := do(t, router, http.MethodPut, "/api/form", map[string]any{"sample": 99}, cookie)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	del := do(t, router, http.MethodDelete, "/api/form", nil, cookie)
	assert.Equal(t, http.StatusNoContent, del.Code)
	w = do(t, router, http.MethodGet, "/api/form", nil, cookie)
	var cleared formResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.False(t, cleared.Saved)
}

func TestRunStreamsFramesAndDone(t *testing.T) {
	fake := &fakeStreamer{}
	srv := newTestServer(t, testSettings(t, "workflow:\n  render_interval: 0s\n"), StaticTransport(fake))
	router := srv.Router()

	w := do(t, router, http.MethodPost, "/api/run", map[string]any{"narrative": "Nausea after first dose."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event:render")
	assert.Contains(t, body, "answer from gpt-4o-mini")
	assert.Contains(t, body, "Judge Feedback")
	assert.Contains(t, body, `"state":"completed"`)
	assert.Greater(t, strings.LastIndex(body, "event:done"), strings.LastIndex(body, "event:render"))
	assert.Equal(t, 8, fake.count())

	cookie := sessionFrom(t, w)
	res := do(t, router, http.MethodGet, "/api/results", nil, cookie)
	require.Equal(t, http.StatusOK, res.Code)

	var results struct {
		State   string                     `json:"state"`
		Results map[string]json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &results))
	assert.Equal(t, "completed", results.State)
	assert.Len(t, results.Results, 8)
	assert.JSONEq(t, `{"kind":"text","value":"answer from gpt-4o-mini"}`, string(results.Results[workflow.BasicAnalysis]))
}

func TestRunRejectsBadRequests(t *testing.T) {
	settings := testSettings(t, "server:\n  max_body_kb: 1\n")
	fake := &fakeStreamer{}
	router := newTestServer(t, settings, StaticTransport(fake)).Router()

	empty := do(t, router, http.MethodPost, "/api/run", map[string]any{"narrative": "   "})
	assert.Equal(t, http.StatusBadRequest, empty.Code)

	malformed := do(t, router, http.MethodPost, "/api/run", "{not json")
	assert.Equal(t, http.StatusBadRequest, malformed.Code)

	large := do(t, router, http.MethodPost, "/api/run", map[string]any{"narrative": strings.Repeat("x", 4<<10)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, large.Code)

	assert.Zero(t, fake.count())
}

func TestIndexAndStatic(t *testing.T) {
	router := newTestServer(t, testSettings(t, "{}"), StaticTransport(&fakeStreamer{})).Router()

	index := do(t, router, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, index.Code)
	assert.Contains(t, index.Body.String(), `<script src="/static/app.js">`)

	js := do(t, router, http.MethodGet, "/static/app.js", nil)
	assert.Equal(t, http.StatusOK, js.Code)

	missing := do(t, router, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCORSOnlyWhenConfigured(t *testing.T) {
	preflight := func(router http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/models", nil)
		req.Header.Set("Origin", "https://ui.example")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	open := newTestServer(t, testSettings(t, "server:\n  cors_origins: [\"https://ui.example\"]\n"), StaticTransport(&fakeStreamer{})).Router()
	assert.Equal(t, "https://ui.example", preflight(open).Header().Get("Access-Control-Allow-Origin"))

	closed := newTestServer(t, testSettings(t, "{}"), StaticTransport(&fakeStreamer{})).Router()
	assert.Empty(t, preflight(closed).Header().Get("Access-Control-Allow-Origin"))
}
