package assistant

import (
	"context"
	"fmt"

	"github.com/michaelbrown/devbot/internal/llm"
)

// AnalyzeCode asks the model for improvement suggestions on a code snippet.
// One-shot call; does not touch the conversation history.
func (a *Assistant) AnalyzeCode(ctx context.Context, code, language string) (string, error) {
	prompt := []llm.Message{
		llm.SystemMessage("You are a code reviewer. Analyze the given code and suggest concrete " +
			"improvements for correctness, performance, readability, and idiomatic style. " +
			"Return a short bulleted list. If the code is fine, say so."),
		llm.UserMessage(fmt.Sprintf("Language: %s\n\n```%s\n%s\n```", language, language, code)),
	}
	return a.oneShot(ctx, prompt)
}

// ExplainCode asks the model to explain what a code snippet does.
// One-shot call; does not touch the conversation history.
func (a *Assistant) ExplainCode(ctx context.Context, code string) (string, error) {
	prompt := []llm.Message{
		llm.SystemMessage("You explain code to developers. Describe what the given code does, " +
			"how it flows, and anything surprising about it. Be concise."),
		llm.UserMessage("Explain this code:\n\n```\n" + code + "\n```"),
	}
	return a.oneShot(ctx, prompt)
}

func (a *Assistant) oneShot(ctx context.Context, prompt []llm.Message) (string, error) {
	client := a.llm
	if a.utilityLLM != nil {
		client = a.utilityLLM
	}
	resp, err := client.ChatCompletion(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
