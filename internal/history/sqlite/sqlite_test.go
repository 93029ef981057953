package sqlite

import (
	"context"
	"testing"

	"github.com/michaelbrown/devbot/internal/history"
	"github.com/michaelbrown/devbot/internal/llm"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGetRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	code := 0
	run := &history.Run{
		ID:             "run00000-0000-0000-0000-000000000000",
		Language:       "python",
		Source:         "print('hi')",
		Status:         "succeeded",
		ExitCode:       &code,
		Stdout:         "hi\n",
		DurationMillis: 42,
	}
	if err := s.AppendRun(ctx, run); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Language != "python" {
		t.Errorf("language = %q, want %q", got.Language, "python")
	}
	if got.Status != "succeeded" {
		t.Errorf("status = %q, want %q", got.Status, "succeeded")
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", got.ExitCode)
	}
	if got.Stdout != "hi\n" {
		t.Errorf("stdout = %q, want %q", got.Stdout, "hi\n")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
}

func TestGetRunNilExitCode(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := &history.Run{
		ID:       "run11111-0000-0000-0000-000000000000",
		Language: "bash",
		Status:   "timed_out",
		TimedOut: true,
	}
	if err := s.AppendRun(ctx, run); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ExitCode != nil {
		t.Errorf("exit code = %v, want nil", *got.ExitCode)
	}
	if !got.TimedOut {
		t.Error("timed_out should be true")
	}
}

func TestGetRunByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := &history.Run{
		ID:       "abc12345-0000-0000-0000-000000000000",
		Language: "go",
		Status:   "failed",
	}
	if err := s.AppendRun(ctx, run); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	got, err := s.GetRun(ctx, "abc12345")
	if err != nil {
		t.Fatalf("GetRun by prefix: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("got ID %q, want %q", got.ID, run.ID)
	}

	if _, err := s.GetRun(ctx, "nope"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, r := range []history.Run{
		{ID: "a", Language: "python", Status: "succeeded"},
		{ID: "b", Language: "python", Status: "failed"},
		{ID: "c", Language: "rust", Status: "compile_error"},
	} {
		r := r
		if err := s.AppendRun(ctx, &r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	all, err := s.ListRuns(ctx, history.RunListOptions{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d runs, want 3", len(all))
	}

	py, err := s.ListRuns(ctx, history.RunListOptions{Language: "python"})
	if err != nil {
		t.Fatalf("ListRuns python: %v", err)
	}
	if len(py) != 2 {
		t.Errorf("got %d python runs, want 2", len(py))
	}

	failed, err := s.ListRuns(ctx, history.RunListOptions{Language: "python", Status: "failed"})
	if err != nil {
		t.Fatalf("ListRuns python/failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Errorf("got %v, want single run b", failed)
	}

	limited, err := s.ListRuns(ctx, history.RunListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d runs, want 1", len(limited))
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &history.Session{
		ID:       "abc12345-0000-0000-0000-000000000000",
		Title:    "test session",
		Status:   history.StatusActive,
		Provider: "ollama",
		Model:    "qwen3:14b",
		Profile:  "default",
	}

	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	if got.Title != "test session" {
		t.Errorf("title = %q, want %q", got.Title, "test session")
	}
	if got.Status != history.StatusActive {
		t.Errorf("status = %q, want %q", got.Status, history.StatusActive)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
}

func TestGetSessionByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &history.Session{
		ID:     "abc12345-0000-0000-0000-000000000000",
		Status: history.StatusActive,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "abc12345")
	if err != nil {
		t.Fatalf("GetSession by prefix: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("got ID %q, want %q", got.ID, sess.ID)
	}
}

func TestGetSessionAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{
		"abc00000-0000-0000-0000-000000000000",
		"abc11111-0000-0000-0000-000000000000",
	} {
		sess := &history.Session{ID: id, Status: history.StatusActive}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	if _, err := s.GetSession(ctx, "abc"); err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
}

func TestListSessionsFilterByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	active := &history.Session{ID: "aaa", Status: history.StatusActive}
	done := &history.Session{ID: "bbb", Status: history.StatusActive}
	for _, sess := range []*history.Session{active, done} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	done.Status = history.StatusCompleted
	if err := s.UpdateSession(ctx, done); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := s.ListSessions(ctx, history.SessionListOptions{Status: history.StatusCompleted})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "bbb" {
		t.Errorf("got %v, want single session bbb", got)
	}
}

func TestDeleteSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &history.Session{ID: "gone", Status: history.StatusActive}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.DeleteSession(ctx, "gone"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, "gone"); err == nil {
		t.Fatal("expected error for deleted session")
	}
}

func TestSaveAndLoadMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &history.Session{ID: "msgs", Status: history.StatusActive}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	messages := []llm.Message{
		llm.SystemMessage("you are a helpful assistant"),
		llm.UserMessage("run this for me"),
		llm.AssistantMessage("done"),
	}
	if err := s.SaveMessages(ctx, sess.ID, messages); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := s.LoadMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[1].Role != llm.RoleUser || got[1].Content != "run this for me" {
		t.Errorf("unexpected message: %+v", got[1])
	}

	// Overwrite
	if err := s.SaveMessages(ctx, sess.ID, messages[:1]); err != nil {
		t.Fatalf("SaveMessages overwrite: %v", err)
	}
	got, err = s.LoadMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d messages after overwrite, want 1", len(got))
	}
}

func TestLoadMessagesMissingSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.LoadMessages(ctx, "never-created")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
