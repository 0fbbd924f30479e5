// File: cmd/generate.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/observability"
	"github.com/xkilldash9x/widgetpilot/internal/widget"
)

const (
	schemeLight = "light"
	schemeDark  = "dark"
)

// generateOptions is the widget configuration requested on the command line.
// Nil dimensions leave the page defaults alone.
type generateOptions struct {
	themes       []string
	allCountries bool
	width        *int
	height       *int
	fullWidth    bool
	fullHeight   bool
	scheme       string
	copy         bool
}

func (o generateOptions) validate() error {
	switch o.scheme {
	case "", schemeLight, schemeDark:
	default:
		return fmt.Errorf("--scheme must be %q or %q, got %q", schemeLight, schemeDark, o.scheme)
	}
	if o.width != nil && *o.width < 0 {
		return errors.New("--width cannot be negative")
	}
	if o.height != nil && *o.height < 0 {
		return errors.New("--height cannot be negative")
	}
	return nil
}

func newGenerateCmd(browsers browserProvider) *cobra.Command {
	var (
		opts          generateOptions
		width, height int
		driver        string
	)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Configure the widget and print its embed code",
		Long: `Drives the widget builder through its four steps with the given options,
presses "generate preview" and prints the resulting embed code to stdout.`,
		Example: `  widgetpilot generate --theme Affiliate --theme Crypto --all-countries --width 800 --height 600 --scheme dark
  widgetpilot generate --full-width --copy > widget.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("driver") {
				cfg.SetBrowserDriver(driver)
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid flags: %w", err)
				}
			}
			if cmd.Flags().Changed("width") {
				opts.width = &width
			}
			if cmd.Flags().Changed("height") {
				opts.height = &height
			}
			if err := opts.validate(); err != nil {
				return err
			}

			return runGenerate(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger, cfg, browsers, opts)
		},
	}

	flags := generateCmd.Flags()
	flags.StringArrayVarP(&opts.themes, "theme", "t", nil, "Theme to select (repeatable)")
	flags.BoolVar(&opts.allCountries, "all-countries", false, "Select every country")
	flags.IntVar(&width, "width", 0, "Widget width in px")
	flags.IntVar(&height, "height", 0, "Widget height in px")
	flags.BoolVar(&opts.fullWidth, "full-width", false, "Stretch the widget to the container width")
	flags.BoolVar(&opts.fullHeight, "full-height", false, "Stretch the widget to the block height")
	flags.StringVar(&opts.scheme, "scheme", "", "Colour scheme: light or dark")
	flags.BoolVar(&opts.copy, "copy", false, "Also press the copy button and check the clipboard")
	flags.StringVar(&driver, "driver", config.DriverCDP, "Browser backend: cdp or playwright")

	return generateCmd
}

// runGenerate opens one page, applies opts and writes the artifact to out.
// Progress goes to status so out stays pipeable.
func runGenerate(
	ctx context.Context,
	out, status io.Writer,
	logger *zap.Logger,
	cfg config.Interface,
	browsers browserProvider,
	opts generateOptions,
) error {
	page, cleanup, err := openPage(ctx, logger, cfg, browsers)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := configure(ctx, page, opts); err != nil {
		return err
	}

	code, err := page.GeneratePreview(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate preview: %w", err)
	}

	if opts.copy {
		res, err := page.CopyCode(ctx)
		if err != nil {
			return fmt.Errorf("failed to copy code: %w", err)
		}
		switch {
		case res.Degraded:
			fmt.Fprintln(status, skipLabel("clipboard unavailable, copy not verified"))
		default:
			fmt.Fprintln(status, passLabel("copied to clipboard"))
		}
		if res.Dialog != nil {
			fmt.Fprintf(status, "%s %s\n", dim("page said:"), res.Dialog.Message)
		}
	}

	fmt.Fprintln(out, code)
	return nil
}

func configure(ctx context.Context, page *widget.Page, opts generateOptions) error {
	for _, theme := range opts.themes {
		if err := page.SelectTheme(ctx, theme); err != nil {
			return fmt.Errorf("failed to select theme %q: %w", theme, err)
		}
	}
	if opts.allCountries {
		if err := page.SelectAllCountries(ctx); err != nil {
			return fmt.Errorf("failed to select all countries: %w", err)
		}
	}
	if opts.width != nil {
		if _, err := page.SetWidth(ctx, *opts.width); err != nil {
			return fmt.Errorf("failed to set width: %w", err)
		}
	}
	if opts.height != nil {
		if _, err := page.SetHeight(ctx, *opts.height); err != nil {
			return fmt.Errorf("failed to set height: %w", err)
		}
	}
	if opts.fullWidth {
		if err := page.SetFullWidth(ctx, true); err != nil {
			return fmt.Errorf("failed to enable full width: %w", err)
		}
	}
	if opts.fullHeight {
		if err := page.SetFullHeight(ctx, true); err != nil {
			return fmt.Errorf("failed to enable full height: %w", err)
		}
	}
	switch opts.scheme {
	case schemeLight:
		return page.SelectLightTheme(ctx)
	case schemeDark:
		return page.SelectDarkTheme(ctx)
	}
	return nil
}

// openPage starts the browser, opens the widget builder and returns the page
// with a cleanup that releases both.
func openPage(ctx context.Context, logger *zap.Logger, cfg config.Interface, browsers browserProvider) (*widget.Page, func(), error) {
	factory, err := browsers(ctx, cfg.Browser(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	closeFactory := func() {
		closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), shutdownTimeout)
		defer cancel()
		if err := factory.Close(closeCtx); err != nil {
			logger.Warn("Failed to shut down browser cleanly.", zap.Error(err))
		}
	}

	drv, err := factory.NewPage(ctx)
	if err != nil {
		closeFactory()
		return nil, nil, fmt.Errorf("failed to open browser page: %w", err)
	}
	cleanup := func() {
		if err := drv.Close(); err != nil {
			logger.Debug("Failed to close page.", zap.Error(err))
		}
		closeFactory()
	}

	page, err := widget.New(drv, cfg.Widget(), cfg.Engine(), logger,
		widget.WithClipboardGrant(cfg.Browser().GrantClipboard))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := page.Open(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to open widget builder: %w", err)
	}
	return page, cleanup, nil
}
