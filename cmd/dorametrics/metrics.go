package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/parthraninga/DORA-Metrics/internal/adapter/driving/http"
	"github.com/parthraninga/DORA-Metrics/internal/application"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

const defaultWindowDays = 30

var (
	metricsFrom     string
	metricsTo       string
	metricsMode     string
	metricsBranches string
	metricsDense    bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <team-id>",
	Short: "Print a team's DORA metrics as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetrics,
}

func init() {
	metricsCmd.Flags().StringVar(&metricsFrom, "from", "", "Window start, YYYY-MM-DD (default: 30 days ago)")
	metricsCmd.Flags().StringVar(&metricsTo, "to", "", "Window end, YYYY-MM-DD (default: today)")
	metricsCmd.Flags().StringVar(&metricsMode, "mode", "all", "Branch mode: prod, stage, dev, all or custom")
	metricsCmd.Flags().StringVar(&metricsBranches, "branches", "", "Comma-separated branches for --mode custom")
	metricsCmd.Flags().BoolVar(&metricsDense, "dense", false, "Zero-fill every day of the trends")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	window, err := parseWindow(metricsFrom, metricsTo)
	if err != nil {
		return err
	}
	mode, err := application.ParseBranchMode(metricsMode)
	if err != nil {
		return err
	}

	var custom []string
	for b := range strings.SplitSeq(metricsBranches, ",") {
		if b = strings.TrimSpace(b); b != "" {
			custom = append(custom, b)
		}
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	m := a.metrics.Compute(cmd.Context(), application.MetricsQuery{
		TeamID:         args[0],
		Window:         window,
		BranchMode:     mode,
		CustomBranches: custom,
	})
	if metricsDense {
		m.Trends.Current = m.Trends.Current.Dense(m.Window)
		m.Trends.Previous = m.Trends.Previous.Dense(m.PreviousWindow)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(httphandler.NewDORAMetricsResponse(m))
}

// parseWindow builds a whole-day window from YYYY-MM-DD flags. Empty values
// default to the last defaultWindowDays days ending today.
func parseWindow(fromFlag, toFlag string) (model.Window, error) {
	to := time.Now().UTC()
	if toFlag != "" {
		t, err := time.Parse(model.DayKeyLayout, toFlag)
		if err != nil {
			return model.Window{}, fmt.Errorf("invalid --to: %w", err)
		}
		to = t
	}

	from := to.AddDate(0, 0, -(defaultWindowDays - 1))
	if fromFlag != "" {
		t, err := time.Parse(model.DayKeyLayout, fromFlag)
		if err != nil {
			return model.Window{}, fmt.Errorf("invalid --from: %w", err)
		}
		from = t
	}

	if from.After(to) {
		return model.Window{}, fmt.Errorf("--from %s is after --to %s", from.Format(model.DayKeyLayout), to.Format(model.DayKeyLayout))
	}
	return model.NewWindow(from, to), nil
}
