package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/devbot/internal/config"
	"github.com/michaelbrown/devbot/internal/history"
	"github.com/michaelbrown/devbot/internal/history/sqlite"
)

var (
	runLanguageFilter string
	runStatusFilter   string
	runLimitFlag      int
	runExportFormat   string
	runExportOutput   string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"runs"},
	Short:   "Inspect the code execution log",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's full output",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryExport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)

	historyListCmd.Flags().StringVar(&runLanguageFilter, "language", "", "Filter by language tag")
	historyListCmd.Flags().StringVar(&runStatusFilter, "status", "", "Filter by status (succeeded, failed, timed_out, ...)")
	historyListCmd.Flags().IntVar(&runLimitFlag, "limit", 20, "Max runs to show")

	historyExportCmd.Flags().StringVar(&runExportFormat, "format", "md", "Export format: md or json")
	historyExportCmd.Flags().StringVarP(&runExportOutput, "output", "o", "", "Output file (default: stdout)")
}

func openStore() (history.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return sqlite.Open(cfg.Storage.DBPath)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), history.RunListOptions{
		Language: runLanguageFilter,
		Status:   runStatusFilter,
		Limit:    runLimitFlag,
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-10s %-12s %-20s %-6s %-8s %s\n", "ID", "LANGUAGE", "STATUS", "EXIT", "TIME", "WHEN")
	fmt.Println(strings.Repeat("─", 75))

	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		fmt.Printf("%-10s %-12s %-20s %-6s %-8s %s\n",
			r.ID[:8], r.Language, r.Status, exit,
			fmt.Sprintf("%dms", r.DurationMillis), timeAgo(r.CreatedAt))
	}

	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Language: %s\n", run.Language)
	fmt.Printf("Status:   %s\n", run.Status)
	if run.ExitCode != nil {
		fmt.Printf("Exit:     %d\n", *run.ExitCode)
	}
	fmt.Printf("Duration: %dms\n", run.DurationMillis)
	fmt.Printf("Created:  %s\n", run.CreatedAt.Format(time.RFC3339))

	if run.Source != "" {
		fmt.Printf("\n--- source ---\n%s\n", strings.TrimRight(run.Source, "\n"))
	}
	if run.Stdout != "" {
		fmt.Printf("\n--- stdout ---\n%s\n", strings.TrimRight(run.Stdout, "\n"))
	}
	if run.Stderr != "" {
		fmt.Printf("\n--- stderr ---\n%s\n", strings.TrimRight(run.Stderr, "\n"))
	}
	if run.Truncated {
		fmt.Println("\n(output truncated)")
	}

	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	var output string
	switch runExportFormat {
	case "json":
		data, err := history.ExportRunJSON(run)
		if err != nil {
			return err
		}
		output = string(data)
	default:
		output = history.ExportRunMarkdown(run)
	}

	if runExportOutput != "" {
		return os.WriteFile(runExportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
