// File: cmd/probe.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser/snapshot"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/observability"
	"github.com/xkilldash9x/widgetpilot/internal/widget"
)

func newProbeCmd(browsers browserProvider) *cobra.Command {
	var (
		snapshotPath string
		strict       bool
	)

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Report which widget builder controls can be found",
		Long: `Looks up every structural control of the widget builder and prints whether
it exists and is visible. With --snapshot the check runs offline against a
saved copy of the page instead of a live browser.`,
		Example: `  widgetpilot probe
  widgetpilot probe --snapshot ~/pages/eventswidget.html --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			var page *widget.Page
			if snapshotPath != "" {
				page, err = snapshotPage(snapshotPath, logger, cfg)
				if err != nil {
					return err
				}
			} else {
				var cleanup func()
				page, cleanup, err = openPage(ctx, logger, cfg, browsers)
				if err != nil {
					return err
				}
				defer cleanup()
			}

			missing, err := probeControls(ctx, cmd.OutOrStdout(), page)
			if err != nil {
				return err
			}
			if strict && missing > 0 {
				return fmt.Errorf("%d controls not found", missing)
			}
			return nil
		},
	}

	probeCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Saved HTML page to probe instead of the live builder")
	probeCmd.Flags().BoolVar(&strict, "strict", false, "Fail when any control is missing")
	return probeCmd
}

// snapshotPage wraps a saved page in the widget facade. The page is already
// loaded, so it is not opened.
func snapshotPage(path string, logger *zap.Logger, cfg config.Interface) (*widget.Page, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand snapshot path %s: %w", path, err)
	}
	drv, err := snapshot.Load(expanded, snapshot.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return widget.New(drv, cfg.Widget(), cfg.Engine(), logger)
}

// probeControls prints one row per control and returns how many are missing.
func probeControls(ctx context.Context, out io.Writer, page *widget.Page) (int, error) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTROL\tEXISTS\tVISIBLE")

	missing := 0
	for _, c := range widget.Controls() {
		exists, err := page.Exists(ctx, c)
		if err != nil {
			return missing, fmt.Errorf("failed to probe %s: %w", c, err)
		}
		visible := false
		if exists {
			if visible, err = page.Visible(ctx, c); err != nil {
				return missing, fmt.Errorf("failed to probe %s: %w", c, err)
			}
		} else {
			missing++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c, yesNo(exists), yesNo(visible))
	}
	if err := tw.Flush(); err != nil {
		return missing, err
	}
	return missing, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
