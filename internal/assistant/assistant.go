// Package assistant implements the DevBot conversation loop: chat with an
// LLM that can execute code snippets through the sandbox dispatcher.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/llm"
	"github.com/michaelbrown/devbot/internal/tools"
)

const defaultSystemPrompt = `You are DevBot, an AI assistant for developers.
You help with programming questions, code review, and debugging.
When the user asks you to run or verify code, use the run_code tool; it executes
the snippet in a sandbox and returns stdout, stderr, and the exit status.
Always interpret execution results for the user instead of echoing them verbatim.`

const defaultMaxTokens = 6000

// Assistant manages a conversation and executes the tool-call loop.
type Assistant struct {
	llm        llm.Client
	utilityLLM llm.Client // optional, for summarization/titles
	dispatcher *dispatch.Dispatcher
	registry   *tools.Registry
	history    []llm.Message
	tools      []llm.ToolDef
	maxIter    int
	maxTokens  int

	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
	OnTextDelta  func(delta string)
	OnRunRecord  func(rec *dispatch.Record) // fired after each sandboxed execution
}

// New creates an Assistant. The dispatcher backs the builtin run_code tool;
// MCP registry tools are added alongside it when available.
func New(client llm.Client, dispatcher *dispatch.Dispatcher, registry *tools.Registry, maxIterations int) *Assistant {
	a := &Assistant{
		llm:        client,
		dispatcher: dispatcher,
		registry:   registry,
		maxIter:    maxIterations,
		maxTokens:  defaultMaxTokens,
		history: []llm.Message{
			llm.SystemMessage(defaultSystemPrompt),
		},
	}

	a.tools = a.builtinTools()
	if registry != nil && registry.HasTools() {
		a.tools = append(a.tools, registry.AllTools()...)
	}
	return a
}

// SetSystemPrompt overrides the default system prompt.
func (a *Assistant) SetSystemPrompt(prompt string) {
	if prompt != "" {
		a.history[0] = llm.SystemMessage(prompt)
	}
}

// FilterTools restricts available tools to the given names.
func (a *Assistant) FilterTools(names []string) {
	if len(names) == 0 {
		return
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var filtered []llm.ToolDef
	for _, t := range a.tools {
		if allowed[t.Name] {
			filtered = append(filtered, t)
		}
	}
	a.tools = filtered
}

// SetMaxTokens sets the context window token budget for history compaction.
func (a *Assistant) SetMaxTokens(maxTokens int) {
	if maxTokens > 0 {
		a.maxTokens = maxTokens
	}
}

// SetUtilityLLM sets an optional lightweight model for housekeeping tasks
// like summarization.
func (a *Assistant) SetUtilityLLM(client llm.Client) {
	a.utilityLLM = client
}

// SetClient swaps the conversation model (for mid-session switching).
func (a *Assistant) SetClient(client llm.Client) {
	a.llm = client
}

// Run sends a user message and executes the full tool-call loop.
// Returns the final assistant text response.
func (a *Assistant) Run(ctx context.Context, userMessage string) (string, error) {
	return a.run(ctx, userMessage, func(ctx context.Context) (*llm.Response, error) {
		return a.llm.ChatCompletion(ctx, a.history, a.tools)
	})
}

// RunStreaming is like Run but streams text output via OnTextDelta.
func (a *Assistant) RunStreaming(ctx context.Context, userMessage string) (string, error) {
	return a.run(ctx, userMessage, func(ctx context.Context) (*llm.Response, error) {
		return a.llm.ChatCompletionStream(ctx, a.history, a.tools, a.OnTextDelta)
	})
}

func (a *Assistant) run(ctx context.Context, userMessage string, complete func(context.Context) (*llm.Response, error)) (string, error) {
	a.compactHistory(ctx)
	a.history = append(a.history, llm.UserMessage(userMessage))

	for i := 0; i < a.maxIter; i++ {
		resp, err := complete(ctx)
		if err != nil {
			return "", fmt.Errorf("llm call (iteration %d): %w", i+1, err)
		}

		a.history = append(a.history, resp.Message)

		// No tool calls means the model is done.
		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			if a.OnToolCall != nil {
				a.OnToolCall(tc.Name, tc.Args)
			}

			result := a.executeTool(ctx, tc)

			if a.OnToolResult != nil {
				a.OnToolResult(tc.Name, result)
			}

			a.history = append(a.history, llm.ToolResultMessage(tc.ID, result))
		}
	}

	return "", fmt.Errorf("assistant reached max iterations (%d) without a final response", a.maxIter)
}

// executeTool dispatches a tool call to the builtin run_code tool or an
// MCP server.
func (a *Assistant) executeTool(ctx context.Context, tc llm.ToolCall) string {
	if tc.Name == "run_code" {
		return a.toolRunCode(ctx, tc.Args)
	}
	if a.registry != nil && a.registry.HasTools() {
		result, err := a.registry.CallTool(ctx, tc.Name, tc.Args)
		if err != nil {
			return fmt.Sprintf("error: %s", err)
		}
		return result
	}
	return fmt.Sprintf("error: unknown tool %q", tc.Name)
}

// History returns the current conversation history.
func (a *Assistant) History() []llm.Message {
	return a.history
}

// HistoryJSON returns the conversation as formatted JSON (for debugging).
func (a *Assistant) HistoryJSON() string {
	data, _ := json.MarshalIndent(a.history, "", "  ")
	return string(data)
}

// trimHistory keeps the system message and the last N messages. Fallback
// when summarization is unavailable.
func (a *Assistant) trimHistory(keepLast int) {
	if len(a.history) <= keepLast+1 {
		return
	}
	system := a.history[0]
	recent := a.history[len(a.history)-keepLast:]
	a.history = append([]llm.Message{system}, recent...)
}

// SetHistory replaces the conversation history (used when resuming a session).
func (a *Assistant) SetHistory(messages []llm.Message) {
	a.history = messages
}

// Reset clears conversation history (keeps system prompt).
func (a *Assistant) Reset() {
	a.history = a.history[:1]
}

// FormatToolCall returns a human-readable string for a tool call.
func FormatToolCall(name string, args map[string]any) string {
	var parts []string
	for k, v := range args {
		s := fmt.Sprintf("%v", v)
		if len(s) > 60 {
			s = s[:60] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, s))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
