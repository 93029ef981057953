package sandbox

import (
	"context"
	"errors"
	"os"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/devbot/internal/runtime"
)

// The runner tests drive real processes through sh, which is assumed
// present on any Unix host. Windows is skipped.

func shRecipe() runtime.Recipe {
	return runtime.Recipe{Tag: "sh", Extension: "sh", Run: []string{"sh", "{file}"}}
}

func testRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("sh-based runner tests are unix-only")
	}
	root := t.TempDir()
	return &Runner{Root: root}, root
}

func assertWorkspaceGone(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("reading workspace root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up, %d entries left in %s", len(entries), root)
	}
}

func TestRunSuccess(t *testing.T) {
	r, root := testRunner(t)

	res, err := r.Run(context.Background(), shRecipe(), "echo hello\n", Limits{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Exited || res.ExitCode != 0 {
		t.Errorf("exited=%v exitCode=%d, want clean exit", res.Exited, res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.TimedOut || res.Truncated || res.CompileFailed {
		t.Errorf("unexpected flags in %+v", res)
	}
	assertWorkspaceGone(t, root)
}

func TestRunNonzeroExitIsData(t *testing.T) {
	r, root := testRunner(t)

	res, err := r.Run(context.Background(), shRecipe(), "echo oops >&2\nexit 7\n", Limits{})
	if err != nil {
		t.Fatalf("nonzero program exit must not be an error, got %v", err)
	}

	if !res.Exited || res.ExitCode != 7 {
		t.Errorf("exited=%v exitCode=%d, want exit 7", res.Exited, res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("stderr = %q, want it to contain %q", res.Stderr, "oops")
	}
	assertWorkspaceGone(t, root)
}

func TestRunTimeoutKillsTree(t *testing.T) {
	r, root := testRunner(t)

	// The script spawns a child so the watchdog must reap the whole group.
	source := "sleep 30 &\nwhile :; do :; done\n"
	limits := Limits{Timeout: 200 * time.Millisecond}

	start := time.Now()
	res, err := r.Run(context.Background(), shRecipe(), source, limits)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TimedOut {
		t.Error("timedOut not set")
	}
	if res.Exited {
		t.Error("a killed process must not report an exit code")
	}
	if elapsed > 2*time.Second {
		t.Errorf("Run returned after %v, want a bounded margin over the 200ms timeout", elapsed)
	}
	assertWorkspaceGone(t, root)
}

func TestRunOutputCap(t *testing.T) {
	r, root := testRunner(t)

	source := "head -c 200000 /dev/zero | tr '\\0' a\n"
	limits := Limits{MaxOutputBytes: 1024}

	res, err := r.Run(context.Background(), shRecipe(), source, limits)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Truncated {
		t.Error("truncated flag not set")
	}
	if len(res.Stdout) != 1024 {
		t.Errorf("stdout length = %d, want exactly the 1024 byte cap", len(res.Stdout))
	}
	if res.Stdout == "" {
		t.Error("truncated output should keep the partial data")
	}
	assertWorkspaceGone(t, root)
}

func TestRunCompileFailure(t *testing.T) {
	r, root := testRunner(t)

	// The compile step runs the source itself; a nonzero exit stands in
	// for a compiler rejecting the program.
	recipe := runtime.Recipe{
		Tag:       "fake-compiled",
		Extension: "sh",
		Compile:   []string{"sh", "{file}"},
		Run:       []string{"sh", "-c", "echo should-not-run"},
	}

	res, err := r.Run(context.Background(), recipe, "echo 'bad syntax' >&2\nexit 2\n", Limits{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.CompileFailed {
		t.Error("compileFailed not set")
	}
	if res.Exited {
		t.Error("compile failure must not carry a program exit code")
	}
	if !strings.Contains(res.Stderr, "bad syntax") {
		t.Errorf("stderr = %q, want the compiler diagnostic", res.Stderr)
	}
	if strings.Contains(res.Stdout, "should-not-run") {
		t.Error("run step executed despite a compile failure")
	}
	assertWorkspaceGone(t, root)
}

func TestRunCompileThenRun(t *testing.T) {
	r, root := testRunner(t)

	recipe := runtime.Recipe{
		Tag:       "fake-compiled",
		Extension: "sh",
		Compile:   []string{"sh", "-c", "true"},
		Run:       []string{"sh", "{file}"},
	}

	res, err := r.Run(context.Background(), recipe, "echo built\n", Limits{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.CompileFailed || !res.Exited || res.ExitCode != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Stdout != "built\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "built\n")
	}
	assertWorkspaceGone(t, root)
}

func TestRunLaunchFailure(t *testing.T) {
	r, root := testRunner(t)

	recipe := runtime.Recipe{
		Tag:       "missing",
		Extension: "x",
		Run:       []string{"devbot-no-such-interpreter", "{file}"},
	}

	_, err := r.Run(context.Background(), recipe, "anything", Limits{})
	if err == nil {
		t.Fatal("expected launch failure for a missing interpreter")
	}
	if !errors.Is(err, ErrLaunch) {
		t.Errorf("error %v should wrap ErrLaunch", err)
	}
	assertWorkspaceGone(t, root)
}

func TestRunCancellation(t *testing.T) {
	r, root := testRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, shRecipe(), "while :; do :; done\n", Limits{Timeout: time.Minute})
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, want prompt process-tree kill", elapsed)
	}
	assertWorkspaceGone(t, root)
}

func TestDefaultLimitsApplied(t *testing.T) {
	l := Limits{}.withDefaults()
	if l.Timeout != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", l.Timeout)
	}
	if l.MaxOutputBytes != 64<<10 {
		t.Errorf("default output cap = %d, want 65536", l.MaxOutputBytes)
	}

	partial := Limits{Timeout: time.Second}.withDefaults()
	if partial.Timeout != time.Second || partial.MaxOutputBytes != 64<<10 {
		t.Errorf("partial limits filled wrong: %+v", partial)
	}
}
