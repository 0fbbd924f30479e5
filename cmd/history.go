// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// historyOptions selects what the history command shows.
type historyOptions struct {
	runID  string
	limit  int
	asJSON bool
}

// newHistoryCmd creates the `history` command.
func newHistoryCmd(provider storeProvider) *cobra.Command {
	var opts historyOptions

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs recorded in the database",
		Long: `Lists the most recent runs stored by "widgetpilot run" when the store is
enabled. With --run-id it shows the scenario results of a single run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if opts.limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return runHistory(ctx, cmd.OutOrStdout(), logger, cfg, provider, opts)
		},
	}

	historyCmd.Flags().StringVar(&opts.runID, "run-id", "", "Show the scenario results of this run")
	historyCmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Number of runs to list")
	historyCmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")
	return historyCmd
}

// runHistory contains the core, testable logic of the history command.
func runHistory(
	ctx context.Context,
	out io.Writer,
	logger *zap.Logger,
	cfg config.Interface,
	provider storeProvider,
	opts historyOptions,
) error {
	s, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if opts.runID != "" {
		results, err := s.ResultsByRun(ctx, opts.runID)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no results recorded for run %s", opts.runID)
		}
		if opts.asJSON {
			return printJSON(out, results)
		}
		for _, res := range results {
			printResult(out, res)
		}
		return nil
	}

	runs, err := s.RecentRuns(ctx, opts.limit)
	if err != nil {
		return err
	}
	if opts.asJSON {
		if runs == nil {
			runs = []schemas.RunReport{}
		}
		return printJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDRIVER\tVERSION\tPASSED\tFAILED\tSKIPPED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Driver, r.Version,
			r.Summary.Passed, r.Summary.Failed, r.Summary.Skipped, r.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize to JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
