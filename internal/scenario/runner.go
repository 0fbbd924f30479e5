// internal/scenario/runner.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/engine"
	"github.com/xkilldash9x/widgetpilot/internal/widget"
)

// ToolName identifies reports produced by this runner.
const ToolName = "widgetpilot"

// Scenario is one end-to-end check against a fresh builder page. Run gets a
// page that has already been opened.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, p *widget.Page, t *T) error
}

// Runner executes scenarios, each on its own page.
type Runner struct {
	factory browser.Factory
	widget  config.WidgetConfig
	engine  config.EngineConfig
	cfg     config.RunnerConfig

	// pages caps live browser pages across concurrent Run calls.
	pages   *semaphore.Weighted
	limiter *rate.Limiter

	grantClipboard bool
	driverName     string
	version        string
	logger         *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClipboardGrant grants clipboard access to every page the runner opens.
func WithClipboardGrant(grant bool) Option {
	return func(r *Runner) { r.grantClipboard = grant }
}

// WithRunInfo sets the driver name and tool version recorded in reports.
func WithRunInfo(driver, version string) Option {
	return func(r *Runner) {
		r.driverName = driver
		r.version = version
	}
}

// NewRunner builds a runner drawing pages from factory.
func NewRunner(factory browser.Factory, cfg config.Interface, logger *zap.Logger, opts ...Option) *Runner {
	rcfg := cfg.Runner()
	concurrency := rcfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	rcfg.Concurrency = concurrency

	r := &Runner{
		factory:        factory,
		widget:         cfg.Widget(),
		engine:         cfg.Engine(),
		cfg:            rcfg,
		pages:          semaphore.NewWeighted(int64(concurrency)),
		limiter:        rate.NewLimiter(rate.Limit(rcfg.NavigationRate), max(rcfg.NavigationBurst, 1)),
		grantClipboard: cfg.Browser().GrantClipboard,
		driverName:     cfg.Browser().Driver,
		logger:         logger.Named("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes scenarios and returns the run report. Results keep the order
// of scenarios. The report is returned even when ctx ends early, together
// with the context error.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*schemas.RunReport, error) {
	report := &schemas.RunReport{
		RunID:     uuid.NewString(),
		Tool:      ToolName,
		Version:   r.version,
		Driver:    r.driverName,
		TargetURL: r.widget.URL(),
		StartedAt: time.Now().UTC(),
		Results:   make([]schemas.ScenarioResult, len(scenarios)),
	}
	log := r.logger.With(zap.String("run_id", report.RunID))
	log.Info("Starting scenario run.",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("concurrency", r.cfg.Concurrency),
		zap.String("target", report.TargetURL))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, s := range scenarios {
		g.Go(func() error {
			report.Results[i] = r.runScenario(gctx, s, log)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	report.Summarize()
	log.Info("Scenario run finished.",
		zap.Int("passed", report.Summary.Passed),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Duration("duration", report.Duration()))
	return report, ctx.Err()
}

// execution is the outcome of a single try.
type execution struct {
	rec      *T
	err      error
	panicked bool
}

// runScenario retries s until it passes, is skipped, or runs out of tries.
func (r *Runner) runScenario(ctx context.Context, s Scenario, log *zap.Logger) schemas.ScenarioResult {
	log = log.With(zap.String("scenario", s.Name))
	res := schemas.ScenarioResult{Name: s.Name, Description: s.Description, StartedAt: time.Now().UTC()}
	start := time.Now()

	var ex execution
	for try := 0; try <= r.cfg.Retries; try++ {
		if try > 0 {
			log.Warn("Retrying scenario.", zap.Int("try", try+1), zap.Error(ex.err))
		}
		res.Tries = try + 1
		ex = r.execute(ctx, s, log)
		if status(ex) != schemas.StatusFailed || ctx.Err() != nil {
			break
		}
	}

	res.DurationMS = time.Since(start).Milliseconds()
	res.Status = status(ex)
	res.Assertions = ex.rec.Failures()
	res.Notes = ex.rec.Notes()
	res.Artifact = ex.rec.Artifact()
	res.Degraded = ex.rec.Degraded()
	if ex.err != nil {
		res.Error = ex.err.Error()
	}
	if res.Status == schemas.StatusFailed {
		res.FailureKind = failureKind(ex)
		var f *engine.Failure
		if errors.As(ex.err, &f) {
			res.Attempts = attemptRecords(f.Attempts)
		}
		log.Error("Scenario failed.", zap.String("kind", res.FailureKind), zap.Int("tries", res.Tries), zap.Error(ex.err),
			zap.Strings("assertions", res.Assertions))
	} else {
		log.Info("Scenario finished.", zap.String("status", string(res.Status)), zap.Int64("duration_ms", res.DurationMS))
	}
	return res
}

func status(ex execution) schemas.Status {
	switch {
	case errors.Is(ex.err, ErrSkipped):
		return schemas.StatusSkipped
	case ex.err != nil, ex.rec.Failed():
		return schemas.StatusFailed
	default:
		return schemas.StatusPassed
	}
}

func failureKind(ex execution) string {
	switch {
	case ex.panicked:
		return "panic"
	case ex.err == nil:
		return "assertion"
	case errors.Is(ex.err, context.DeadlineExceeded):
		return "timeout"
	}
	return engine.KindOf(ex.err).String()
}

func attemptRecords(attempts []engine.Attempt) []schemas.AttemptRecord {
	out := make([]schemas.AttemptRecord, len(attempts))
	for i, a := range attempts {
		out[i] = schemas.AttemptRecord{
			Strategy:   a.Strategy,
			Action:     a.Action.String(),
			Outcome:    a.Outcome.String(),
			Matches:    a.Matches,
			Error:      a.Err,
			DurationMS: a.Duration.Milliseconds(),
		}
	}
	return out
}

// execute runs s once on a fresh page bounded by the scenario timeout.
func (r *Runner) execute(ctx context.Context, s Scenario, log *zap.Logger) (ex execution) {
	ex.rec = NewT()
	// Registered first so a panicking backend is contained as well.
	defer func() {
		if p := recover(); p != nil {
			log.Error("Scenario panicked.",
				zap.Any("panicValue", p),
				zap.String("stack", string(debug.Stack())))
			ex.err = fmt.Errorf("scenario panicked: %v", p)
			ex.panicked = true
		}
	}()

	if r.cfg.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ScenarioTimeout)
		defer cancel()
	}

	if err := r.pages.Acquire(ctx, 1); err != nil {
		ex.err = fmt.Errorf("waiting for a browser page: %w", err)
		return ex
	}
	defer r.pages.Release(1)

	drv, err := r.factory.NewPage(ctx)
	if err != nil {
		ex.err = fmt.Errorf("failed to open browser page: %w", err)
		return ex
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			log.Debug("Failed to close page.", zap.Error(cerr))
		}
	}()

	page, err := widget.New(drv, r.widget, r.engine, log, widget.WithClipboardGrant(r.grantClipboard))
	if err != nil {
		ex.err = err
		return ex
	}

	if err := r.limiter.Wait(ctx); err != nil {
		ex.err = fmt.Errorf("navigation throttled: %w", err)
		return ex
	}
	if err := page.Open(ctx); err != nil {
		ex.err = err
		return ex
	}
	ex.err = s.Run(ctx, page, ex.rec)
	return ex
}

// Select returns the scenarios named in names, in suite order. An empty
// names selects the whole suite.
func Select(suite []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return suite, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []Scenario
	for _, s := range suite {
		if wanted[s.Name] {
			out = append(out, s)
			delete(wanted, s.Name)
		}
	}
	if len(wanted) > 0 {
		var unknown []string
		for _, n := range names {
			if wanted[n] {
				unknown = append(unknown, n)
				wanted[n] = false
			}
		}
		return nil, fmt.Errorf("unknown scenarios: %v", unknown)
	}
	return out, nil
}

// Names lists the scenarios of the built-in suite.
func Names() []string {
	suite := Suite()
	names := make([]string, len(suite))
	for i, s := range suite {
		names[i] = s.Name
	}
	return names
}
