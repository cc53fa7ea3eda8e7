package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/parthraninga/DORA-Metrics/internal/application"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file> <repo-id>",
	Short: "Ingest a stored fetch response for a repository",
	Long: `Record the file as a successful fetch batch of the repository, normalize
it into pull requests and workflow runs, and derive incidents.`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

var reparseCmd = &cobra.Command{
	Use:   "reparse <repo-id>",
	Short: "Rebuild a repository's rows from its latest successful batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runReparse,
}

var (
	deriveFrom string
	deriveTo   string
)

var deriveCmd = &cobra.Command{
	Use:   "derive <repo-id>",
	Short: "Derive incidents from a repository's workflow runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runDerive,
}

func init() {
	deriveCmd.Flags().StringVar(&deriveFrom, "from", "", "Window start, YYYY-MM-DD (default: 30 days ago)")
	deriveCmd.Flags().StringVar(&deriveTo, "to", "", "Window end, YYYY-MM-DD (default: today)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	batchID, result, err := a.ingest.Ingest(cmd.Context(), args[1], raw)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", args[0], err)
	}

	printResult(cmd, batchID, result)
	return nil
}

func runReparse(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	batchID, result, err := a.ingest.Reparse(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printResult(cmd, batchID, result)
	return nil
}

func runDerive(cmd *cobra.Command, args []string) error {
	window, err := parseWindow(deriveFrom, deriveTo)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.repos.Get(cmd.Context(), args[0]); err != nil {
		return err
	}

	incidents, err := a.deriver.Derive(cmd.Context(), args[0], window)
	if err != nil {
		return err
	}

	resolved := 0
	for _, inc := range incidents {
		if inc.Resolved() {
			resolved++
		}
	}
	slog.Info("incidents derived", "repo_id", args[0], "incidents", len(incidents), "resolved", resolved)
	fmt.Fprintf(cmd.OutOrStdout(), "%d incidents (%d resolved) between %s and %s\n",
		len(incidents), resolved, window.From.Format(model.DayKeyLayout), window.To.Format(model.DayKeyLayout))
	return nil
}

func printResult(cmd *cobra.Command, batchID string, r application.NormalizeResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %d pull requests, %d workflow runs, %d incidents (skipped %d sections, %d records)\n",
		batchID, r.PullRequests, r.WorkflowRuns, r.Incidents, r.SkippedSections, r.SkippedRecords)
}
