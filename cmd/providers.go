// File: cmd/providers.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/browser/cdp"
	"github.com/xkilldash9x/widgetpilot/internal/browser/pw"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/store"
)

// browserProvider creates the browser backend for a command. Tests swap in
// an in-memory factory.
type browserProvider func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Factory, error)

// newBrowserFactory picks the backend named by cfg.Driver.
func newBrowserFactory(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Factory, error) {
	switch cfg.Driver {
	case config.DriverCDP:
		return cdp.NewManager(ctx, cfg, logger), nil
	case config.DriverPlaywright:
		return pw.NewManager(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported browser driver %q", cfg.Driver)
	}
}

// runStore is the slice of the history store the commands need.
type runStore interface {
	SaveRun(ctx context.Context, report *schemas.RunReport) error
	RecentRuns(ctx context.Context, limit int) ([]schemas.RunReport, error)
	ResultsByRun(ctx context.Context, runID string) ([]schemas.ScenarioResult, error)
}

// storeProvider defines an interface for components that can create a run
// store. It allows tests to inject a fake instead of a live database.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (runStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider backed by pgxpool.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to PostgreSQL and makes sure the history tables exist.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (runStore, func(), error) {
	sc := cfg.Store()
	if sc.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (WIDGETPILOT_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, sc.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	schemaCtx := ctx
	if sc.SchemaTimeout > 0 {
		var cancel context.CancelFunc
		schemaCtx, cancel = context.WithTimeout(ctx, sc.SchemaTimeout)
		defer cancel()
	}
	if err := s.EnsureSchema(schemaCtx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// deps are the swappable backends shared by the subcommands.
type deps struct {
	browsers browserProvider
	stores   storeProvider
}

func defaultDeps() deps {
	return deps{browsers: newBrowserFactory, stores: NewStoreProvider()}
}
