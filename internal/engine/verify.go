// internal/engine/verify.go
package engine

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

// Property is the element property an expectation observes.
type Property int

const (
	PropChecked Property = iota
	PropValue
	PropVisible
	PropHidden
)

func (p Property) String() string {
	switch p {
	case PropChecked:
		return "checked"
	case PropValue:
		return "value"
	case PropVisible:
		return "visible"
	case PropHidden:
		return "hidden"
	default:
		return "property"
	}
}

// Expectation is a state an element should reach. Either Handle or Target
// identifies the element; a Target is re-resolved on every poll.
type Expectation struct {
	Intent   string
	Handle   browser.Handle
	Target   *Target
	Property Property
	// Checked is the wanted state for PropChecked.
	Checked bool
	// Value is the wanted value for PropValue.
	Value string
	// Timeout overrides the verifier's default bound.
	Timeout time.Duration
}

// Observation is the last read taken while verifying.
type Observation struct {
	Handle  browser.Handle
	State   browser.ElementState
	Polls   int
	Elapsed time.Duration
}

// Verifier polls for expected states. It only reads.
type Verifier struct {
	drv      browser.Reader
	resolver *Resolver
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewVerifier creates a verifier polling every interval, bounded by timeout
// unless an expectation brings its own.
func NewVerifier(drv browser.Reader, resolver *Resolver, interval, timeout time.Duration, logger *zap.Logger) *Verifier {
	return &Verifier{
		drv:      drv,
		resolver: resolver,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("verifier"),
	}
}

// Verify waits for e to hold. On timeout it returns a VerificationTimeout
// failure carrying the last observed value.
func (v *Verifier) Verify(ctx context.Context, e Expectation) (Observation, error) {
	var obs Observation
	intent := e.Intent
	if intent == "" {
		intent = "expect " + e.Property.String()
	}
	start := time.Now()
	_, err := v.Until(ctx, intent, e.Timeout, func(ctx context.Context) (bool, string, error) {
		h := e.Handle
		if h == "" && e.Target != nil {
			hs, err := v.resolver.Resolve(ctx, *e.Target)
			if err != nil {
				return false, "", err
			}
			if len(hs) > 0 {
				h = hs[0]
			}
		}
		st := browser.ElementState{}
		if h != "" {
			var err error
			if st, err = v.drv.Describe(ctx, h); err != nil {
				return false, "", err
			}
		}
		obs.Handle, obs.State = h, st
		obs.Polls++
		return e.holds(st), e.observe(st), nil
	})
	obs.Elapsed = time.Since(start)
	return obs, err
}

func (e Expectation) holds(st browser.ElementState) bool {
	switch e.Property {
	case PropChecked:
		return st.Found && st.Checked == e.Checked
	case PropValue:
		return st.Found && st.Value == e.Value
	case PropVisible:
		return st.Found && st.Visible
	case PropHidden:
		return !st.Found || !st.Visible
	default:
		return false
	}
}

func (e Expectation) observe(st browser.ElementState) string {
	if !st.Found {
		return "absent"
	}
	switch e.Property {
	case PropChecked:
		return strconv.FormatBool(st.Checked)
	case PropValue:
		return st.Value
	default:
		if st.Visible {
			return "visible"
		}
		return "hidden"
	}
}

// Predicate reports whether a condition holds and what it observed.
type Predicate func(ctx context.Context) (ok bool, observed string, err error)

// Until polls pred until it holds or the bound elapses. Driver errors are
// retried on the next tick; the last one is attached to the timeout failure.
// It returns the last observed value in both cases.
func (v *Verifier) Until(ctx context.Context, intent string, timeout time.Duration, pred Predicate) (string, error) {
	if timeout <= 0 {
		timeout = v.timeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	start := time.Now()
	var (
		observed string
		lastErr  error
	)
	for {
		ok, o, err := pred(pctx)
		if err == nil {
			observed, lastErr = o, nil
			if ok {
				v.logger.Debug("Expectation met.",
					zap.String("intent", intent),
					zap.String("observed", observed),
					zap.Duration("elapsed", time.Since(start)))
				return observed, nil
			}
		} else {
			lastErr = err
		}

		select {
		case <-pctx.Done():
			if err := ctx.Err(); err != nil {
				return observed, err
			}
			f := newFailure(KindVerificationTimeout, intent, lastErr)
			f.Observed = observed
			v.logger.Debug("Expectation timed out.",
				zap.String("intent", intent),
				zap.String("observed", observed),
				zap.Duration("timeout", timeout))
			return observed, f
		case <-ticker.C:
		}
	}
}
