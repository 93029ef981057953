package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/devbot/internal/assistant"
	"github.com/michaelbrown/devbot/internal/config"
	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/history"
	"github.com/michaelbrown/devbot/internal/history/sqlite"
	"github.com/michaelbrown/devbot/internal/llm"
	"github.com/michaelbrown/devbot/internal/tools"
)

var resumeID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive conversation with DevBot.
Ask it to write code; generated programs run in the sandbox and their
output comes back into the conversation.

Examples:
  devbot chat
  devbot chat --provider claude
  devbot chat --provider ollama --model qwen3:8b`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&resumeID, "resume", "", "Resume a saved session by ID or prefix")
	rootCmd.AddCommand(chatCmd)
}

// chatEnv bundles the pieces slash commands operate on.
type chatEnv struct {
	assistant  *assistant.Assistant
	dispatcher *dispatch.Dispatcher
	store      history.Store
	rl         *readline.Instance
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Load assistant profile if specified
	var profile *assistant.Profile
	if profileFlag != "" {
		profilePath := filepath.Join(cfg.Assistant.ProfilesDir, profileFlag+".yaml")
		profile, err = assistant.LoadProfile(profilePath)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
	}

	providerName := providerFlag
	if providerName == "" {
		if profile != nil && profile.Provider != "" {
			providerName = profile.Provider
		} else {
			providerName = cfg.DefaultProvider
		}
	}

	provider, err := cfg.Provider(providerName)
	if err != nil {
		return err
	}

	model := modelFlag
	if model == "" {
		if profile != nil && profile.Model != "" {
			model = profile.Model
		} else {
			model = provider.Models["default"]
		}
	}

	maxIter := cfg.Assistant.MaxIterations
	if profile != nil && profile.MaxIter > 0 {
		maxIter = profile.MaxIter
	}

	dispatcher := newDispatcher(cfg)

	fmt.Printf("DevBot - AI Coding Chat\n")
	if profile != nil {
		fmt.Printf("Profile: %s\n", profile.Name)
	}
	fmt.Printf("Provider: %s | Model: %s\n", providerName, model)
	fmt.Printf("Languages: %s\n", strings.Join(dispatcher.Languages(), ", "))

	// Create tool registry from config
	registry := tools.NewRegistry()
	defer registry.Close()

	for name, toolCfg := range cfg.Tools {
		if err := registry.Register(name, toolCfg); err != nil {
			fmt.Printf("Warning: failed to start tool server %s: %v\n", name, err)
		}
	}

	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	client := llm.NewClient(provider.BaseURL, provider.APIKey, model)
	a := assistant.New(client, dispatcher, registry, maxIter)
	a.SetMaxTokens(cfg.Assistant.ContextMaxTokens)

	if utilityModel, ok := provider.Models["utility"]; ok && utilityModel != "" {
		a.SetUtilityLLM(llm.NewClient(provider.BaseURL, provider.APIKey, utilityModel))
	}

	// Apply profile overrides
	if profile != nil {
		a.SetSystemPrompt(profile.SystemPrompt)
		a.FilterTools(profile.Tools)
	}

	// Open the history store; chat works without it, just unlogged.
	var store history.Store
	if s, err := sqlite.Open(cfg.Storage.DBPath); err == nil {
		store = s
		defer s.Close()
	} else {
		fmt.Printf("Warning: history unavailable: %v\n", err)
	}

	// Resume or create a session
	var sess *history.Session
	if store != nil {
		if resumeID != "" {
			sess, err = store.GetSession(context.Background(), resumeID)
			if err != nil {
				return fmt.Errorf("resuming session: %w", err)
			}
			messages, err := store.LoadMessages(context.Background(), sess.ID)
			if err != nil {
				return fmt.Errorf("loading session messages: %w", err)
			}
			if len(messages) > 0 {
				a.SetHistory(messages)
			}
			fmt.Printf("Resumed session %s (%d messages)\n\n", sess.ID[:8], len(messages))
		} else {
			sess = &history.Session{
				ID:       uuid.New().String(),
				Status:   history.StatusActive,
				Provider: providerName,
				Model:    model,
				Profile:  profileFlag,
			}
			if err := store.CreateSession(context.Background(), sess); err != nil {
				fmt.Printf("Warning: creating session: %v\n", err)
				sess = nil
			}
		}
	}

	// Log every sandboxed run and summarize it inline
	a.OnRunRecord = func(rec *dispatch.Record) {
		if store != nil {
			run := history.RunFromRecord(dispatch.Request{Language: rec.Language}, rec)
			if err := store.AppendRun(context.Background(), run); err != nil {
				log.Printf("warning: recording run: %v", err)
			}
		}
	}

	// Wire up callbacks for display
	a.OnTextDelta = func(delta string) {
		fmt.Print(delta)
	}
	a.OnToolCall = func(name string, args map[string]any) {
		fmt.Printf("\n  \033[33m⚡ Tool: %s\033[0m\n", assistant.FormatToolCall(name, args))
	}
	a.OnToolResult = func(name string, result string) {
		// Show first few lines of result
		lines := strings.Split(strings.TrimSpace(result), "\n")
		preview := lines
		if len(preview) > 8 {
			preview = preview[:8]
		}
		for _, line := range preview {
			fmt.Printf("  \033[90m│ %s\033[0m\n", line)
		}
		if len(lines) > 8 {
			fmt.Printf("  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-8)
		}
		fmt.Println()
	}

	// Set up readline for input with history
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     "/tmp/devbot_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Per-request cancellation: Ctrl+C cancels the active request, not the
	// whole app. Ctrl+C while idle exits via readline.ErrInterrupt.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	env := &chatEnv{assistant: a, dispatcher: dispatcher, store: store, rl: rl}

	saveSession := func() {
		if store == nil || sess == nil {
			return
		}
		if sess.Title == "" {
			sess.Title = firstUserLine(a.History())
			store.UpdateSession(context.Background(), sess)
		}
		if err := store.SaveMessages(context.Background(), sess.ID, a.History()); err != nil {
			log.Printf("warning: saving session: %v", err)
		}
	}

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Handle slash commands
		if strings.HasPrefix(input, "/") {
			if handleCommand(input, env) {
				continue
			}
		}

		// Create a per-request context so Ctrl+C only cancels this request
		reqCtx, cancel := context.WithCancel(context.Background())
		reqCancel = cancel

		// Run the assistant with streaming output
		fmt.Printf("\n\033[32mdevbot>\033[0m ")
		_, err = a.RunStreaming(reqCtx, input)
		wasInterrupted := reqCtx.Err() != nil
		cancel()
		reqCancel = nil

		saveSession()

		if err != nil {
			if wasInterrupted {
				fmt.Println("\n(interrupted)")
				continue
			}
			fmt.Printf("\n\033[31merror: %s\033[0m\n\n", err)
			continue
		}

		fmt.Printf("\n\n")
	}
}

func handleCommand(input string, env *chatEnv) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "/reset":
		env.assistant.Reset()
		fmt.Println("Conversation reset.")
		fmt.Println()
	case "/history":
		fmt.Println(env.assistant.HistoryJSON())
		fmt.Println()
	case "/languages":
		fmt.Println(strings.Join(env.dispatcher.Languages(), ", "))
		fmt.Println()
	case "/run":
		cmdRun(env, fields[1:])
	case "/improve":
		cmdImprove(env, fields[1:])
	case "/explain":
		cmdExplain(env, strings.TrimSpace(strings.TrimPrefix(input, fields[0])))
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /run <lang> [file]     - Execute code in the sandbox (prompts for code without a file)")
		fmt.Println("  /improve <file> [lang] - Ask for improvement suggestions on a source file")
		fmt.Println("  /explain <code>        - Ask for a plain-language explanation")
		fmt.Println("  /languages             - List supported languages")
		fmt.Println("  /history               - Show raw conversation history (JSON)")
		fmt.Println("  /reset                 - Clear conversation history")
		fmt.Println("  /help                  - Show this help")
		fmt.Println("  /quit                  - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return true
}

// cmdRun executes code from a file, or prompts for it line by line.
func cmdRun(env *chatEnv, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: /run <language> [file]")
		fmt.Println()
		return
	}
	language := args[0]

	var source string
	if len(args) > 1 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Printf("error: %v\n\n", err)
			return
		}
		source = string(data)
	} else {
		fmt.Println("Enter code; finish with a line containing only EOF:")
		var lines []string
		env.rl.SetPrompt("  ")
		for {
			line, err := env.rl.Readline()
			if err != nil || strings.TrimSpace(line) == "EOF" {
				break
			}
			lines = append(lines, line)
		}
		env.rl.SetPrompt("\033[36myou>\033[0m ")
		source = strings.Join(lines, "\n")
	}

	if strings.TrimSpace(source) == "" {
		fmt.Println("No code entered.")
		fmt.Println()
		return
	}

	req := dispatch.Request{Language: language, Source: source}
	rec, err := env.dispatcher.Execute(context.Background(), req)
	if err != nil {
		fmt.Printf("error: %v\n\n", err)
		return
	}

	if env.store != nil {
		if err := env.store.AppendRun(context.Background(), history.RunFromRecord(req, rec)); err != nil {
			log.Printf("warning: recording run: %v", err)
		}
	}

	printRecord(rec)
	fmt.Println()
}

// cmdImprove sends a source file to the assistant for review.
func cmdImprove(env *chatEnv, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: /improve <file> [language]")
		fmt.Println()
		return
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n\n", err)
		return
	}

	language := ""
	if len(args) > 1 {
		language = args[1]
	} else {
		language = languageFromExtension(args[0])
	}

	fmt.Printf("\n\033[32mdevbot>\033[0m ")
	answer, err := env.assistant.AnalyzeCode(context.Background(), string(data), language)
	if err != nil {
		fmt.Printf("\033[31merror: %s\033[0m\n\n", err)
		return
	}
	fmt.Printf("%s\n\n", answer)
}

// cmdExplain asks the assistant for a plain-language explanation.
func cmdExplain(env *chatEnv, code string) {
	if code == "" {
		fmt.Println("Usage: /explain <code>")
		fmt.Println()
		return
	}

	fmt.Printf("\n\033[32mdevbot>\033[0m ")
	answer, err := env.assistant.ExplainCode(context.Background(), code)
	if err != nil {
		fmt.Printf("\033[31merror: %s\033[0m\n\n", err)
		return
	}
	fmt.Printf("%s\n\n", answer)
}

// languageFromExtension maps a file extension to a language tag.
func languageFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".java":
		return "java"
	case ".c":
		return "c"
	case ".cpp", ".cc", ".cxx":
		return "cpp"
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".sh":
		return "bash"
	default:
		return ""
	}
}

// firstUserLine derives a session title from the first user message.
func firstUserLine(messages []llm.Message) string {
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			t := strings.TrimSpace(m.Content)
			if i := strings.IndexByte(t, '\n'); i >= 0 {
				t = t[:i]
			}
			if len(t) > 80 {
				t = t[:80] + "..."
			}
			return t
		}
	}
	return ""
}
