package dispatch

import (
	"context"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/devbot/internal/runtime"
	"github.com/michaelbrown/devbot/internal/sandbox"
)

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("sh-based dispatcher tests are unix-only")
	}
	reg, err := runtime.New([]runtime.Recipe{
		{Tag: "bash", Extension: "sh", Run: []string{"sh", "{file}"}},
		{Tag: "ghost", Extension: "x", Run: []string{"devbot-no-such-interpreter", "{file}"}},
	})
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return New(reg, sandbox.Limits{})
}

func TestExecuteSucceeded(t *testing.T) {
	d := testDispatcher(t)

	rec, err := d.Execute(context.Background(), Request{Language: "bash", Source: "echo 2\n"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if rec.Status != StatusSucceeded {
		t.Errorf("status = %q, want succeeded", rec.Status)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", rec.ExitCode)
	}
	if rec.Stdout != "2\n" {
		t.Errorf("stdout = %q, want %q", rec.Stdout, "2\n")
	}
	if rec.ID == "" {
		t.Error("record should carry an ID")
	}
}

func TestExecuteFailedExit(t *testing.T) {
	d := testDispatcher(t)

	rec, err := d.Execute(context.Background(), Request{Language: "bash", Source: "exit 5\n"})
	if err != nil {
		t.Fatalf("a nonzero program exit must not surface as an error: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("status = %q, want failed", rec.Status)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 5 {
		t.Errorf("exit code = %v, want 5", rec.ExitCode)
	}
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	d := testDispatcher(t)

	start := time.Now()
	rec, err := d.Execute(context.Background(), Request{Language: "cobol", Source: "DISPLAY '1'."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if rec.Status != StatusUnsupportedLanguage {
		t.Errorf("status = %q, want unsupported_language", rec.Status)
	}
	// The registry short-circuits before any spawn: no launch failure from
	// the ghost recipe's missing interpreter, no output, near-zero latency.
	if rec.Status == StatusLaunchFailure || rec.Stdout != "" {
		t.Errorf("unsupported language must not spawn anything: %+v", rec)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("lookup rejection took %v, want immediate return", elapsed)
	}
	if !strings.Contains(rec.Stderr, "cobol") {
		t.Errorf("stderr = %q, want it to name the language", rec.Stderr)
	}
}

func TestExecuteLaunchFailure(t *testing.T) {
	d := testDispatcher(t)

	rec, err := d.Execute(context.Background(), Request{Language: "ghost", Source: "whatever"})
	if err != nil {
		t.Fatalf("a missing interpreter is a record variant, not an error: %v", err)
	}
	if rec.Status != StatusLaunchFailure {
		t.Errorf("status = %q, want launch_failure", rec.Status)
	}
	if rec.ExitCode != nil {
		t.Error("launch failure must not carry an exit code")
	}
}

func TestExecuteTimeout(t *testing.T) {
	d := testDispatcher(t)

	start := time.Now()
	rec, err := d.ExecuteWithLimits(context.Background(),
		Request{Language: "bash", Source: "while true; do :; done\n"},
		sandbox.Limits{Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.Status != StatusTimedOut || !rec.TimedOut {
		t.Errorf("status = %q timedOut=%v, want a timeout record", rec.Status, rec.TimedOut)
	}
	if rec.ExitCode != nil {
		t.Error("timeout must not carry an exit code")
	}
	if elapsed > 2*time.Second {
		t.Errorf("Execute returned after %v, want a bounded margin over 100ms", elapsed)
	}
}

func TestLanguages(t *testing.T) {
	d := testDispatcher(t)

	langs := d.Languages()
	if len(langs) != 2 || langs[0] != "bash" || langs[1] != "ghost" {
		t.Errorf("Languages() = %v, want sorted [bash ghost]", langs)
	}
}
