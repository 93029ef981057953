package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	goruntime "runtime"
	"strings"
	"testing"

	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/history"
	"github.com/michaelbrown/devbot/internal/history/sqlite"
	"github.com/michaelbrown/devbot/internal/tools"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	registry := tools.NewRegistry()
	t.Cleanup(func() { registry.Close() })

	return New(testConfig(), store, testDispatcher(t), registry)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHandleListLanguages(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/languages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp["languages"]) != 1 || resp["languages"][0] != "bash" {
		t.Errorf("languages = %v, want [bash]", resp["languages"])
	}
}

func TestHandleExecute(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	s := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/execute",
		`{"language":"bash","source":"echo hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var rec dispatch.Record
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if rec.Status != dispatch.StatusSucceeded {
		t.Errorf("status = %q, want succeeded", rec.Status)
	}
	if rec.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", rec.Stdout, "hello\n")
	}

	// The run should have been logged
	w = doJSON(t, s, http.MethodGet, "/api/runs/"+rec.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET run status = %d", w.Code)
	}
	var run history.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("decoding run: %v", err)
	}
	if run.Source != "echo hello" {
		t.Errorf("source = %q, want %q", run.Source, "echo hello")
	}
}

func TestHandleExecuteUnsupported(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/execute",
		`{"language":"cobol","source":"DISPLAY 'HI'."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var rec dispatch.Record
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if rec.Status != dispatch.StatusUnsupportedLanguage {
		t.Errorf("status = %q, want unsupported_language", rec.Status)
	}
}

func TestHandleExecuteValidation(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/execute", `{"language":"bash"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/execute", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleListRuns(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	s := testServer(t)

	for _, src := range []string{"echo one", "echo two"} {
		w := doJSON(t, s, http.MethodPost, "/api/execute",
			`{"language":"bash","source":"`+src+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("execute status = %d", w.Code)
		}
	}

	w := doJSON(t, s, http.MethodGet, "/api/runs?language=bash", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var runs []history.Run
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d runs, want 2", len(runs))
	}
}

func TestHandleSessionLifecycle(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/sessions", `{"title":"demo"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}

	var sess history.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	if sess.Provider != "test" {
		t.Errorf("provider = %q, want test", sess.Provider)
	}
	if sess.Model != "test-model" {
		t.Errorf("model = %q, want test-model", sess.Model)
	}

	w = doJSON(t, s, http.MethodGet, "/api/sessions/"+sess.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/sessions/"+sess.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/sessions/"+sess.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}
