package history

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michaelbrown/devbot/internal/llm"
)

// ExportRunMarkdown renders a run log entry as a markdown document.
func ExportRunMarkdown(run *Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- **Language:** %s\n", run.Language)
	fmt.Fprintf(&b, "- **Status:** %s\n", run.Status)
	if run.ExitCode != nil {
		fmt.Fprintf(&b, "- **Exit code:** %d\n", *run.ExitCode)
	}
	fmt.Fprintf(&b, "- **Duration:** %dms\n", run.DurationMillis)
	fmt.Fprintf(&b, "- **Executed:** %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.Truncated {
		b.WriteString("- **Output truncated**\n")
	}

	fmt.Fprintf(&b, "\n## Source\n\n```%s\n%s\n```\n", run.Language, strings.TrimRight(run.Source, "\n"))
	if run.Stdout != "" {
		fmt.Fprintf(&b, "\n## Stdout\n\n```\n%s\n```\n", strings.TrimRight(run.Stdout, "\n"))
	}
	if run.Stderr != "" {
		fmt.Fprintf(&b, "\n## Stderr\n\n```\n%s\n```\n", strings.TrimRight(run.Stderr, "\n"))
	}

	return b.String()
}

// ExportSessionMarkdown renders a session and its messages as markdown.
func ExportSessionMarkdown(sess *Session, messages []llm.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", sess.Title)
	fmt.Fprintf(&b, "- **Session:** %s\n", sess.ID)
	fmt.Fprintf(&b, "- **Provider:** %s\n", sess.Provider)
	fmt.Fprintf(&b, "- **Model:** %s\n", sess.Model)
	if sess.Profile != "" {
		fmt.Fprintf(&b, "- **Profile:** %s\n", sess.Profile)
	}
	fmt.Fprintf(&b, "- **Created:** %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Status:** %s\n", sess.Status)
	b.WriteString("\n---\n\n")

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleUser:
			fmt.Fprintf(&b, "## You\n\n%s\n\n", m.Content)
		case llm.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(&b, "## DevBot\n\n%s\n\n", m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				fmt.Fprintf(&b, "**Tool Call:** `%s`\n```json\n%s\n```\n\n", tc.Name, string(args))
			}
		case llm.RoleTool:
			fmt.Fprintf(&b, "<details>\n<summary>Tool Result</summary>\n\n```\n%s\n```\n</details>\n\n", m.Content)
		}
	}

	return b.String()
}

// ExportRunJSON renders a run log entry as formatted JSON.
func ExportRunJSON(run *Run) ([]byte, error) {
	return json.MarshalIndent(run, "", "  ")
}

// ExportSessionJSON renders a session and its messages as formatted JSON.
func ExportSessionJSON(sess *Session, messages []llm.Message) ([]byte, error) {
	export := struct {
		Session  *Session      `json:"session"`
		Messages []llm.Message `json:"messages"`
	}{
		Session:  sess,
		Messages: messages,
	}
	return json.MarshalIndent(export, "", "  ")
}
