package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/ecoaudit/internal/controller"
	"github.com/dgnsrekt/ecoaudit/internal/telemetry"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		failUnder  float64
	)

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Audit one page and print the report",
		Example: `  ecoaudit run https://example.com/
  ecoaudit run --json --device laptop https://example.com/blog
  ecoaudit run --fail-under 0.7 https://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.svc.Run(cmd.Context(), controller.RunRequest{URL: args[0]})
			if err != nil {
				return err
			}

			if cfg.MetricsFile != "" {
				if err := telemetry.WriteTextfile(a.svc.Metrics().Registry(), cfg.MetricsFile); err != nil {
					slog.Warn("Failed to write metrics file", "path", cfg.MetricsFile, "error", err)
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("failed to encode report: %w", err)
				}
			} else {
				printReport(os.Stdout, report, a.profiles.Load())
			}

			if failUnder > 0 && (report.Score == nil || *report.Score < failUnder) {
				return fmt.Errorf("%w: %.2f < %.2f", errScoreBelow, report.ScoreValue(), failUnder)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Print the report as JSON")
	cmd.Flags().Float64Var(&failUnder, "fail-under", 0, "Exit with status 2 when the overall score is below this value (0-1)")
	return cmd
}
