// code-runner is an MCP stdio server exposing the DevBot sandbox as a
// code_run tool, usable from any MCP-capable client.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/runtime"
	"github.com/michaelbrown/devbot/internal/sandbox"
)

var dispatcher = dispatch.New(runtime.Default(), sandbox.DefaultLimits())

func main() {
	s := server.NewMCPServer("devbot-code-runner", "0.1.0")

	langs := dispatcher.Languages()

	s.AddTool(mcp.Tool{
		Name:        "code_run",
		Description: fmt.Sprintf("Execute code in an isolated workspace. Supported languages: %s.", strings.Join(langs, ", ")),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Programming language (%s)", strings.Join(langs, ", ")),
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
			},
			Required: []string{"language", "code"},
		},
	}, handleCodeRun)

	if err := server.ServeStdio(s); err != nil {
		fmt.Printf("server error: %v\n", err)
	}
}

func handleCodeRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	language, _ := args["language"].(string)
	code, _ := args["code"].(string)

	if language == "" || code == "" {
		return errResult("error: 'language' and 'code' are required"), nil
	}

	rec, err := dispatcher.Execute(ctx, dispatch.Request{Language: language, Source: code})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("status: %s (%dms)", rec.Status, rec.DurationMillis))
	if rec.ExitCode != nil {
		output.WriteString(fmt.Sprintf("\nexit code: %d", *rec.ExitCode))
	}
	if rec.Stdout != "" {
		output.WriteString("\nstdout:\n" + rec.Stdout)
	}
	if rec.Stderr != "" {
		output.WriteString("\nstderr:\n" + rec.Stderr)
	}
	if rec.Truncated {
		output.WriteString("\n(output truncated)")
	}

	text := output.String()
	if len(text) > 4000 {
		text = text[:4000] + "\n... (output truncated)"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: !rec.OK(),
	}, nil
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
