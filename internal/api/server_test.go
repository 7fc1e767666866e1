package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/logflow-dev/logflow/internal/engine"
	"github.com/logflow-dev/logflow/internal/testutil"
)

func pipelineDoc(name string, src *testutil.MemorySource, sink *testutil.MemorySink) string {
	testutil.RegisterMemoryPlugins()
	srcName := testutil.AddSource("src", src)
	sinkName := testutil.AddSink("sink", sink)
	return `{
		"name": "` + name + `",
		"sources": [{"name": "` + srcName + `", "type": "` + testutil.MemorySourceType + `", "config": {}}],
		"sinks": [{"name": "` + sinkName + `", "type": "` + testutil.MemorySinkType + `", "config": {}}],
		"batch_size": 1
	}`
}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(testutil.NewTestLogger())
	return New(eng, ":0", testutil.NewTestLogger()), eng
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAPI_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAPI_LoadListStartStop(t *testing.T) {
	srv, _ := newTestServer(t)

	sink := &testutil.MemorySink{}
	doc := pipelineDoc("api-pipe", &testutil.MemorySource{Lines: []string{"x"}}, sink)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/pipelines", doc)
	if rec.Code != http.StatusCreated {
		t.Fatalf("load status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/pipelines/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Pipelines []string `json:"pipelines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Pipelines) != 1 || listed.Pipelines[0] != "api-pipe" {
		t.Errorf("pipelines = %v", listed.Pipelines)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/pipelines/api-pipe/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(sink.Events()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.Events()) != 1 {
		t.Fatalf("expected delivery through API-started pipeline, got %d events", len(sink.Events()))
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api-pipe") {
		t.Errorf("metrics body missing pipeline: %s", rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/pipelines/api-pipe/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/pipelines/api-pipe/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPI_LoadInvalidConfig(t *testing.T) {
	srv, _ := newTestServer(t)
	testutil.RegisterMemoryPlugins()

	doc := `{
		"name": "bad",
		"sources": [{"name": "s", "type": "no_such_type", "config": {}}],
		"sinks": [{"name": "k", "type": "` + testutil.MemorySinkType + `", "config": {}}]
	}`

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/pipelines", doc)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestAPI_DuplicateLoadConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	doc := pipelineDoc("twice", &testutil.MemorySource{}, &testutil.MemorySink{})
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/pipelines", doc); rec.Code != http.StatusCreated {
		t.Fatalf("first load status = %d", rec.Code)
	}

	doc2 := pipelineDoc("twice", &testutil.MemorySource{}, &testutil.MemorySink{})
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/pipelines", doc2); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate load status = %d, want 409", rec.Code)
	}

	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/pipelines?replace=true", doc2); rec.Code != http.StatusCreated {
		t.Fatalf("replace load status = %d", rec.Code)
	}
}

func TestAPI_MissingPipeline(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/pipelines/ghost/", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get status = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodDelete, "/api/v1/pipelines/ghost/", ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete status = %d, want 404", rec.Code)
	}
}
