package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/michaelbrown/devbot/internal/llm"
)

// estimateTokens returns an approximate token count for a message.
// Uses chars/4 heuristic — accurate enough for context management.
func estimateTokens(m llm.Message) int {
	tokens := len(m.Content) / 4
	for _, tc := range m.ToolCalls {
		tokens += len(tc.Name) / 4
		if argsJSON, err := json.Marshal(tc.Args); err == nil {
			tokens += len(argsJSON) / 4
		}
	}
	// Minimum 1 token per message for role overhead
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

func estimateHistoryTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	return total
}

// findSplitPoint finds a clean boundary to split history into old and
// recent sections: the returned index is the start of the recent section
// and always lands on a user message so tool call/result pairs stay intact.
// Index 0 (system prompt) is never included.
func findSplitPoint(messages []llm.Message, recentTokenBudget int) int {
	if len(messages) <= 2 {
		return len(messages)
	}

	tokens := 0
	budgetExceeded := false
	splitIdx := len(messages)
	for i := len(messages) - 1; i >= 1; i-- {
		msgTokens := estimateTokens(messages[i])
		if tokens+msgTokens > recentTokenBudget {
			splitIdx = i + 1
			budgetExceeded = true
			break
		}
		tokens += msgTokens
	}

	if !budgetExceeded {
		return len(messages)
	}

	if splitIdx >= len(messages) {
		splitIdx = len(messages) - 1
	}

	for splitIdx > 1 {
		if messages[splitIdx].Role == llm.RoleUser {
			break
		}
		splitIdx--
	}

	// Must leave at least the system prompt + 1 message to summarize
	if splitIdx <= 1 || messages[splitIdx].Role != llm.RoleUser {
		return len(messages)
	}

	return splitIdx
}

// compactHistory summarizes older messages when history exceeds the token
// budget. On summarization failure it falls back to a plain trim.
func (a *Assistant) compactHistory(ctx context.Context) {
	total := estimateHistoryTokens(a.history)
	if total <= a.maxTokens {
		return
	}

	// Keep recent messages within 60% of budget
	recentBudget := a.maxTokens * 60 / 100
	splitIdx := findSplitPoint(a.history, recentBudget)
	if splitIdx >= len(a.history) {
		return
	}

	oldMessages := a.history[1:splitIdx]
	if len(oldMessages) == 0 {
		return
	}

	summarizer := a.llm
	if a.utilityLLM != nil {
		summarizer = a.utilityLLM
	}
	summary, err := summarizeMessages(ctx, summarizer, oldMessages)
	if err != nil {
		a.trimHistory(10)
		return
	}

	summaryMsg := llm.SystemMessage("[Prior conversation summary]\n" + summary)
	newHistory := make([]llm.Message, 0, 2+len(a.history)-splitIdx)
	newHistory = append(newHistory, a.history[0])
	newHistory = append(newHistory, summaryMsg)
	newHistory = append(newHistory, a.history[splitIdx:]...)
	a.history = newHistory
}

// summarizeMessages asks the model for a concise summary of the given messages.
func summarizeMessages(ctx context.Context, client llm.Client, messages []llm.Message) (string, error) {
	var content string
	for _, m := range messages {
		prefix := string(m.Role)
		if m.ToolCallID != "" {
			prefix = fmt.Sprintf("tool_result(%s)", m.ToolCallID)
		}
		text := m.Content
		for _, tc := range m.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Args)
			text += fmt.Sprintf("\n[tool_call: %s(%s)]", tc.Name, string(argsJSON))
		}
		content += fmt.Sprintf("[%s]: %s\n", prefix, text)
	}

	prompt := []llm.Message{
		llm.SystemMessage("You are a summarization assistant. Produce a concise summary of the following conversation excerpt. " +
			"Preserve key facts, decisions, execution results, and context the user or assistant may need later. " +
			"Output only the summary, no preamble."),
		llm.UserMessage("Summarize this conversation:\n\n" + content),
	}

	resp, err := client.ChatCompletion(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("summarization LLM call: %w", err)
	}

	summary := resp.Message.Content
	const maxSummaryChars = 4000
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars] + "\n... (summary truncated)"
	}
	return summary, nil
}
