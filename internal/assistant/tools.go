package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/llm"
)

// toolRunCode executes a snippet through the sandbox dispatcher and renders
// the record as text for the model.
func (a *Assistant) toolRunCode(ctx context.Context, args map[string]any) string {
	language, _ := args["language"].(string)
	code, _ := args["code"].(string)
	if language == "" || code == "" {
		return "error: 'language' and 'code' are required"
	}
	if a.dispatcher == nil {
		return "error: code execution is not available"
	}

	rec, err := a.dispatcher.Execute(ctx, dispatch.Request{Language: language, Source: code})
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	if a.OnRunRecord != nil {
		a.OnRunRecord(rec)
	}
	return renderRecordText(rec)
}

// renderRecordText flattens a display record into the plain-text shape tool
// results use.
func renderRecordText(rec *dispatch.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s", rec.Status)
	if rec.ExitCode != nil {
		fmt.Fprintf(&b, " (exit code %d)", *rec.ExitCode)
	}
	fmt.Fprintf(&b, ", %dms\n", rec.DurationMillis)
	if rec.Stdout != "" {
		b.WriteString("stdout:\n" + rec.Stdout)
		if !strings.HasSuffix(rec.Stdout, "\n") {
			b.WriteString("\n")
		}
	}
	if rec.Stderr != "" {
		b.WriteString("stderr:\n" + rec.Stderr)
		if !strings.HasSuffix(rec.Stderr, "\n") {
			b.WriteString("\n")
		}
	}
	if rec.Truncated {
		b.WriteString("(output truncated)\n")
	}
	return b.String()
}

// builtinTools returns the tool definitions always available to the model.
func (a *Assistant) builtinTools() []llm.ToolDef {
	languages := "python, javascript, java, c, cpp, go, rust, bash"
	if a.dispatcher != nil {
		languages = strings.Join(a.dispatcher.Languages(), ", ")
	}
	return []llm.ToolDef{
		{
			Name: "run_code",
			Description: fmt.Sprintf(
				"Execute a code snippet in a sandbox and return its output. Supported languages: %s.", languages),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"language": map[string]any{
						"type":        "string",
						"description": "Programming language of the snippet",
					},
					"code": map[string]any{
						"type":        "string",
						"description": "Source code to execute",
					},
				},
				"required": []string{"language", "code"},
			},
		},
	}
}
