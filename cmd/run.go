// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/observability"
	"github.com/xkilldash9x/widgetpilot/internal/reporting"
	"github.com/xkilldash9x/widgetpilot/internal/scenario"
)

const shutdownTimeout = 10 * time.Second

var (
	passLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	skipLabel = color.New(color.FgYellow).SprintFunc()
	dim       = color.New(color.FgHiBlack).SprintFunc()
)

// runFlags are the config overrides accepted by `run`.
type runFlags struct {
	driver      string
	baseURL     string
	concurrency int
	retries     int
	headless    bool
	formats     []string
	output      string
}

// apply copies every flag the user set onto cfg and revalidates it.
func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.SetBrowserDriver(f.driver)
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(f.headless)
	}
	if flags.Changed("base-url") {
		cfg.SetWidgetBaseURL(f.baseURL)
	}
	if flags.Changed("concurrency") {
		cfg.SetRunnerConcurrency(f.concurrency)
	}
	if flags.Changed("retries") {
		cfg.SetRunnerRetries(f.retries)
	}
	if flags.Changed("format") {
		cfg.SetReportFormats(f.formats)
	}
	if flags.Changed("output") {
		cfg.SetReportOutputDir(f.output)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func newRunCmd(browsers browserProvider, stores storeProvider) *cobra.Command {
	var f runFlags

	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run the scenario suite against the widget builder",
		Long: `Runs the widget builder scenarios (all of them, or the ones named) in fresh
browser pages, writes the run report and, when the store is enabled, records
the run in PostgreSQL. The command fails when any scenario fails.`,
		Example: `  widgetpilot run
  widgetpilot run copy-code full-workflow --driver playwright --format json --format junit`,
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return scenario.Names(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.SetRunnerScenarios(args)
			}

			return runSuite(ctx, cmd.OutOrStdout(), logger, cfg, browsers, stores)
		},
	}

	runCmd.Flags().StringVar(&f.driver, "driver", config.DriverCDP, "Browser backend: cdp or playwright")
	runCmd.Flags().StringVar(&f.baseURL, "base-url", "", "Override the widget host (e.g. https://dev.3snet.info)")
	runCmd.Flags().IntVarP(&f.concurrency, "concurrency", "j", 2, "Number of scenarios run in parallel")
	runCmd.Flags().IntVar(&f.retries, "retries", 0, "Extra attempts for a failed scenario")
	runCmd.Flags().BoolVar(&f.headless, "headless", true, "Run the browser without a window")
	runCmd.Flags().StringSliceVarP(&f.formats, "format", "f", []string{reporting.FormatJSON}, "Report formats (json, junit)")
	runCmd.Flags().StringVarP(&f.output, "output", "o", "", "Directory the reports are written to")

	return runCmd
}

// runSuite contains the core, testable logic of the run command.
func runSuite(
	ctx context.Context,
	out io.Writer,
	logger *zap.Logger,
	cfg config.Interface,
	browsers browserProvider,
	stores storeProvider,
) error {
	scenarios, err := scenario.Select(scenario.Suite(), cfg.Runner().Scenarios)
	if err != nil {
		return err
	}

	factory, err := browsers(ctx, cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		// The run context may already be cancelled; shutdown gets its own budget.
		closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), shutdownTimeout)
		defer cancel()
		if err := factory.Close(closeCtx); err != nil {
			logger.Warn("Failed to shut down browser cleanly.", zap.Error(err))
		}
	}()

	logger.Info("Starting run",
		zap.Int("scenarios", len(scenarios)),
		zap.String("driver", cfg.Browser().Driver),
		zap.String("target", cfg.Widget().URL()))

	runner := scenario.NewRunner(factory, cfg, logger, scenario.WithRunInfo(cfg.Browser().Driver, Version))
	report, runErr := runner.Run(ctx, scenarios)
	if report == nil {
		return runErr
	}

	printReport(out, report)

	paths, err := reporting.WriteAll(report, cfg.Report().Formats, cfg.Report().OutputDir)
	if err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}
	for _, p := range paths {
		fmt.Fprintf(out, "%s %s\n", dim("report:"), p)
	}

	if cfg.Store().Enabled {
		if err := saveRun(ctx, logger, cfg, stores, report); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d scenarios failed", report.Summary.Failed, report.Summary.Total)
	}
	return nil
}

func saveRun(ctx context.Context, logger *zap.Logger, cfg config.Interface, stores storeProvider, report *schemas.RunReport) error {
	s, cleanup, err := stores.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	if err := s.SaveRun(ctx, report); err != nil {
		return fmt.Errorf("failed to save run %s: %w", report.RunID, err)
	}
	logger.Info("Run saved.", zap.String("run_id", report.RunID))
	return nil
}

// printReport writes one line per scenario and a summary line.
func printReport(out io.Writer, report *schemas.RunReport) {
	for _, res := range report.Results {
		printResult(out, res)
	}
	s := report.Summary
	fmt.Fprintf(out, "\n%d scenarios: %s, %s, %s in %s\n",
		s.Total,
		passLabel(fmt.Sprintf("%d passed", s.Passed)),
		failLabel(fmt.Sprintf("%d failed", s.Failed)),
		skipLabel(fmt.Sprintf("%d skipped", s.Skipped)),
		report.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "%s %s\n", dim("run:"), report.RunID)
}

func printResult(out io.Writer, res schemas.ScenarioResult) {
	var label string
	switch res.Status {
	case schemas.StatusPassed:
		label = passLabel("PASS")
	case schemas.StatusSkipped:
		label = skipLabel("SKIP")
	default:
		label = failLabel("FAIL")
	}

	line := fmt.Sprintf("%s %-20s %s", label, res.Name, dim(fmt.Sprintf("%dms", res.DurationMS)))
	if res.Tries > 1 {
		line += dim(fmt.Sprintf(" (%d tries)", res.Tries))
	}
	if res.Degraded {
		line += " " + skipLabel("degraded")
	}
	fmt.Fprintln(out, line)

	if res.Status == schemas.StatusFailed {
		if res.Error != "" {
			fmt.Fprintf(out, "    %s: %s\n", res.FailureKind, res.Error)
		}
		for _, a := range res.Assertions {
			fmt.Fprintf(out, "    %s\n", a)
		}
	}
	for _, n := range res.Notes {
		fmt.Fprintf(out, "    %s %s\n", dim("note:"), n)
	}
}
