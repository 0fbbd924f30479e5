// Package engine carries out semantic UI intents against a browser.Driver.
//
// An intent such as "select theme Igaming" flows one way through the package:
// an optional overlay Gate opens the dropdown holding the control, an
// Executor runs an ordered chain of Strategies, each of which asks the
// Resolver to turn a Target into element handles, and the Verifier polls
// until the page reflects the expected state. Nothing is cached between
// calls; every Target is resolved against the live DOM.
package engine

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
)

// Engine bundles the components bound to a single page.
type Engine struct {
	Driver   browser.Driver
	Resolver *Resolver
	Executor *Executor
	Verifier *Verifier

	cfg    config.EngineConfig
	logger *zap.Logger
}

// New wires an engine for drv.
func New(drv browser.Driver, cfg config.EngineConfig, logger *zap.Logger) *Engine {
	logger = logger.Named("engine")
	r := NewResolver(drv, logger)
	return &Engine{
		Driver:   drv,
		Resolver: r,
		Executor: NewExecutor(drv, r, cfg.AttemptTimeout, logger),
		Verifier: NewVerifier(drv, r, cfg.PollInterval, cfg.VerifyTimeout, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Gate returns an overlay gate for the given surface and panel selectors.
func (e *Engine) Gate(surfaceCSS, panelCSS string) *Gate {
	return NewGate(e.Driver, e.Verifier, surfaceCSS, panelCSS, e.cfg.OverlayTimeout, e.logger)
}

// Config returns the timing configuration the engine was built with.
func (e *Engine) Config() config.EngineConfig {
	return e.cfg
}

// Logger returns the engine's named logger.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}
