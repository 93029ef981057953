package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/devbot/internal/config"
	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/runtime"
	"github.com/michaelbrown/devbot/internal/sandbox"
)

var (
	providerFlag string
	modelFlag    string
	profileFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "devbot",
	Short: "DevBot - AI coding chatbot with sandboxed code execution",
	Long: `DevBot is a terminal chatbot that pairs an LLM with a multi-language
code sandbox. Ask it to write code and it runs the result in an isolated
workspace, returning output, exit status, and timing.

It connects to Ollama or any OpenAI-compatible provider.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "LLM provider (ollama, claude, gemini)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Assistant profile to use (e.g. default, coder)")
}

// newDispatcher builds the code dispatcher from the built-in runtime
// registry and the configured sandbox limits.
func newDispatcher(cfg *config.Config) *dispatch.Dispatcher {
	d := dispatch.New(runtime.Default(), sandbox.Limits{
		Timeout:        cfg.Sandbox.Timeout,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	})
	if cfg.Sandbox.WorkDir != "" {
		d.SetWorkDir(cfg.Sandbox.WorkDir)
	}
	return d
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
