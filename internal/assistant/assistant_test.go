package assistant

import (
	"context"
	goruntime "runtime"
	"strings"
	"testing"

	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/llm"
	"github.com/michaelbrown/devbot/internal/runtime"
	"github.com/michaelbrown/devbot/internal/sandbox"
)

// fakeClient plays back scripted responses in order.
type fakeClient struct {
	responses []llm.Response
	calls     int
}

func (f *fakeClient) ChatCompletion(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.Response, error) {
	if f.calls >= len(f.responses) {
		resp := f.responses[len(f.responses)-1]
		return &resp, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	return &resp, nil
}

func (f *fakeClient) ChatCompletionStream(ctx context.Context, messages []llm.Message, tools []llm.ToolDef, handler llm.StreamHandler) (*llm.Response, error) {
	resp, err := f.ChatCompletion(ctx, messages, tools)
	if err == nil && handler != nil && resp.Message.Content != "" {
		handler(resp.Message.Content)
	}
	return resp, err
}

func shDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("sh-based assistant tests are unix-only")
	}
	reg, err := runtime.New([]runtime.Recipe{
		{Tag: "bash", Extension: "sh", Run: []string{"sh", "{file}"}},
	})
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return dispatch.New(reg, sandbox.Limits{})
}

func TestRunPlainResponse(t *testing.T) {
	client := &fakeClient{responses: []llm.Response{
		{Message: llm.AssistantMessage("just an answer")},
	}}
	a := New(client, nil, nil, 5)

	got, err := a.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "just an answer" {
		t.Errorf("response = %q", got)
	}
	// system + user + assistant
	if len(a.History()) != 3 {
		t.Errorf("history has %d messages, want 3", len(a.History()))
	}
}

func TestRunCodeToolLoop(t *testing.T) {
	client := &fakeClient{responses: []llm.Response{
		{Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:   "call-1",
				Name: "run_code",
				Args: map[string]any{"language": "bash", "code": "echo hi"},
			}},
		}},
		{Message: llm.AssistantMessage("the program printed hi")},
	}}

	a := New(client, shDispatcher(t), nil, 5)

	var recorded *dispatch.Record
	a.OnRunRecord = func(rec *dispatch.Record) { recorded = rec }

	got, err := a.Run(context.Background(), "run echo hi in bash")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "the program printed hi" {
		t.Errorf("final response = %q", got)
	}

	if recorded == nil {
		t.Fatal("OnRunRecord never fired")
	}
	if recorded.Status != dispatch.StatusSucceeded {
		t.Errorf("record status = %q, want succeeded", recorded.Status)
	}

	var toolResult string
	for _, m := range a.History() {
		if m.Role == llm.RoleTool {
			toolResult = m.Content
		}
	}
	if !strings.Contains(toolResult, "hi") {
		t.Errorf("tool result %q should contain program output", toolResult)
	}
	if !strings.Contains(toolResult, "succeeded") {
		t.Errorf("tool result %q should carry the status", toolResult)
	}
}

func TestRunCodeToolBadArgs(t *testing.T) {
	a := New(&fakeClient{responses: []llm.Response{{}}}, shDispatcher(t), nil, 5)

	out := a.executeTool(context.Background(), llm.ToolCall{Name: "run_code", Args: map[string]any{}})
	if !strings.Contains(out, "error") {
		t.Errorf("missing args should produce a tool error, got %q", out)
	}
}

func TestRunMaxIterations(t *testing.T) {
	// A model that never stops calling tools must hit the iteration cap.
	client := &fakeClient{responses: []llm.Response{
		{Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:   "loop",
				Name: "run_code",
				Args: map[string]any{"language": "bash", "code": "true"},
			}},
		}},
	}}

	a := New(client, shDispatcher(t), nil, 2)
	_, err := a.Run(context.Background(), "loop forever")
	if err == nil || !strings.Contains(err.Error(), "max iterations") {
		t.Fatalf("err = %v, want max iterations error", err)
	}
}

func TestUnknownTool(t *testing.T) {
	a := New(&fakeClient{responses: []llm.Response{{}}}, nil, nil, 5)

	out := a.executeTool(context.Background(), llm.ToolCall{Name: "teleport"})
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("got %q, want unknown tool error", out)
	}
}

func TestResetKeepsSystemPrompt(t *testing.T) {
	a := New(&fakeClient{responses: []llm.Response{
		{Message: llm.AssistantMessage("ok")},
	}}, nil, nil, 5)

	if _, err := a.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	a.Reset()

	h := a.History()
	if len(h) != 1 || h[0].Role != llm.RoleSystem {
		t.Errorf("after Reset history = %+v, want only the system prompt", h)
	}
}

func TestAnalyzeCodePrefersUtilityModel(t *testing.T) {
	main := &fakeClient{responses: []llm.Response{
		{Message: llm.AssistantMessage("main answer")},
	}}
	utility := &fakeClient{responses: []llm.Response{
		{Message: llm.AssistantMessage("utility answer")},
	}}

	a := New(main, nil, nil, 5)
	a.SetUtilityLLM(utility)

	got, err := a.AnalyzeCode(context.Background(), "print(1)", "python")
	if err != nil {
		t.Fatalf("AnalyzeCode: %v", err)
	}
	if got != "utility answer" {
		t.Errorf("AnalyzeCode = %q, want the utility model's answer", got)
	}
	if main.calls != 0 {
		t.Error("main model should not be used when a utility model is set")
	}
}
