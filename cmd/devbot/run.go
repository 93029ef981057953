package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/devbot/internal/config"
	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/history"
	"github.com/michaelbrown/devbot/internal/history/sqlite"
	"github.com/michaelbrown/devbot/internal/sandbox"
)

var (
	timeoutFlag   time.Duration
	maxOutputFlag int
	noLogFlag     bool
)

var runCmd = &cobra.Command{
	Use:   "run <language> [file]",
	Short: "Execute a code snippet in the sandbox",
	Long: `Execute code in an isolated workspace and print the result.

Reads the program from a file, or from stdin when no file is given.
The sandboxed program's exit code is reported as data; devbot itself
exits nonzero only when the execution machinery fails.

Examples:
  devbot run python hello.py
  echo 'console.log(6*7)' | devbot run javascript
  devbot run bash slow.sh --timeout 5s`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Per-step wall clock limit (overrides config)")
	runCmd.Flags().IntVar(&maxOutputFlag, "max-output", 0, "Per-stream output cap in bytes (overrides config)")
	runCmd.Flags().BoolVar(&noLogFlag, "no-log", false, "Skip recording the run in history")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	language := args[0]

	var source []byte
	if len(args) == 2 {
		source, err = os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
	} else {
		source, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}
	if len(source) == 0 {
		return fmt.Errorf("no source code provided")
	}

	dispatcher := newDispatcher(cfg)
	req := dispatch.Request{Language: language, Source: string(source)}

	limits := sandbox.Limits{
		Timeout:        cfg.Sandbox.Timeout,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	}
	if timeoutFlag > 0 {
		limits.Timeout = timeoutFlag
	}
	if maxOutputFlag > 0 {
		limits.MaxOutputBytes = maxOutputFlag
	}

	rec, err := dispatcher.ExecuteWithLimits(context.Background(), req, limits)
	if err != nil {
		return err
	}

	if !noLogFlag {
		if store, err := sqlite.Open(cfg.Storage.DBPath); err == nil {
			if err := store.AppendRun(context.Background(), history.RunFromRecord(req, rec)); err != nil {
				log.Printf("warning: recording run: %v", err)
			}
			store.Close()
		}
	}

	printRecord(rec)
	return nil
}

func printRecord(rec *dispatch.Record) {
	fmt.Printf("status: %s (%dms)\n", rec.Status, rec.DurationMillis)
	if rec.ExitCode != nil {
		fmt.Printf("exit code: %d\n", *rec.ExitCode)
	}
	if rec.Stdout != "" {
		fmt.Printf("--- stdout ---\n%s", rec.Stdout)
		if rec.Stdout[len(rec.Stdout)-1] != '\n' {
			fmt.Println()
		}
	}
	if rec.Stderr != "" {
		fmt.Printf("--- stderr ---\n%s", rec.Stderr)
		if rec.Stderr[len(rec.Stderr)-1] != '\n' {
			fmt.Println()
		}
	}
	if rec.Truncated {
		fmt.Println("(output truncated)")
	}
}
