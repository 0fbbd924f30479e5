// internal/engine/strategy.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

// ActionKind tags what a strategy does with the element it resolves.
type ActionKind int

const (
	ActionClick ActionKind = iota
	ActionCheck
	ActionUncheck
	ActionFill
	ActionSelectOption
	// ActionForceCheck tries a forced pointer check, then sets the checked
	// property directly and fires input and change.
	ActionForceCheck
	// ActionForceUncheck is ActionForceCheck towards the unchecked state.
	ActionForceUncheck
)

func (a ActionKind) String() string {
	switch a {
	case ActionClick:
		return "click"
	case ActionCheck:
		return "check"
	case ActionUncheck:
		return "uncheck"
	case ActionFill:
		return "fill"
	case ActionSelectOption:
		return "select-option"
	case ActionForceCheck:
		return "force-check"
	case ActionForceUncheck:
		return "force-uncheck"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Effect is a checked state a strategy must leave behind. A dispatch that
// returns cleanly but leaves the effect target in the wrong state failed.
type Effect struct {
	Target  Target
	Checked bool
}

// Strategy is one way of carrying out an intent.
type Strategy struct {
	Name   string
	Action ActionKind
	Target Target

	// Value is the text for ActionFill.
	Value string
	// Option picks the entry for ActionSelectOption.
	Option browser.OptionRef
	// Force skips actionability checks on pointer actions.
	Force bool
	// Exhaustive tries every resolved handle in turn instead of the first.
	Exhaustive bool
	Effect     *Effect
}

// Forced returns a copy of s with Force set.
func (s Strategy) Forced() Strategy {
	s.Force = true
	return s
}

// Expecting returns a copy of s that must leave t in the given checked state.
func (s Strategy) Expecting(t Target, checked bool) Strategy {
	s.Effect = &Effect{Target: t, Checked: checked}
	return s
}

// Click builds a click strategy.
func Click(name string, t Target) Strategy {
	return Strategy{Name: name, Action: ActionClick, Target: t}
}

// Check builds a strategy that brings a checkbox or radio to checked.
func Check(name string, t Target) Strategy {
	return Strategy{Name: name, Action: ActionCheck, Target: t}
}

// SetChecked builds a check or uncheck strategy.
func SetChecked(name string, t Target, checked bool) Strategy {
	if checked {
		return Check(name, t)
	}
	return Strategy{Name: name, Action: ActionUncheck, Target: t}
}

// ForceChecked builds the mutation escape hatch towards the given state.
func ForceChecked(name string, t Target, checked bool) Strategy {
	a := ActionForceCheck
	if !checked {
		a = ActionForceUncheck
	}
	return Strategy{Name: name, Action: a, Target: t, Force: true}
}

// Fill builds a strategy replacing a field's content with value.
func Fill(name string, t Target, value string) Strategy {
	return Strategy{Name: name, Action: ActionFill, Target: t, Value: value}
}

// SelectOption builds a native select strategy.
func SelectOption(name string, t Target, opt browser.OptionRef) Strategy {
	return Strategy{Name: name, Action: ActionSelectOption, Target: t, Option: opt}
}

// Outcome of a single strategy attempt.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Attempt records what happened to one strategy of a chain.
type Attempt struct {
	Strategy string
	Action   ActionKind
	Outcome  Outcome
	Matches  int
	Err      string
	Duration time.Duration
}

func (a Attempt) String() string {
	s := fmt.Sprintf("%s: %s", a.Strategy, a.Outcome)
	if a.Err != "" {
		s += " (" + a.Err + ")"
	}
	return s
}

// ChainResult describes a chain that succeeded.
type ChainResult struct {
	Winner   string
	Handle   browser.Handle
	Attempts []Attempt
}

var errNoEffect = errors.New("action left no observable effect")

// Executor runs strategy chains against one page.
type Executor struct {
	drv            browser.Driver
	resolver       *Resolver
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewExecutor creates an executor. attemptTimeout bounds each dispatch.
func NewExecutor(drv browser.Driver, resolver *Resolver, attemptTimeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		drv:            drv,
		resolver:       resolver,
		attemptTimeout: attemptTimeout,
		logger:         logger.Named("executor"),
	}
}

// Execute tries the strategies in order and stops at the first success. When
// none succeeds the returned *Failure is NotFound if every strategy matched
// nothing and ActionUnreachable otherwise. Canceling ctx aborts with ctx's error.
func (x *Executor) Execute(ctx context.Context, intent string, chain []Strategy) (ChainResult, error) {
	var res ChainResult
	failed := false

	for _, s := range chain {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		att := Attempt{Strategy: s.Name, Action: s.Action}

		handles, err := x.resolver.Resolve(ctx, s.Target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			att.Outcome, att.Err = OutcomeFailed, err.Error()
		} else if len(handles) == 0 {
			att.Outcome = OutcomeSkipped
		} else {
			att.Matches = len(handles)
			if !s.Exhaustive {
				handles = handles[:1]
			}
			var won browser.Handle
			for _, h := range handles {
				if err = x.attempt(ctx, s, h); err == nil {
					won = h
					break
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return res, ctxErr
				}
			}
			if err == nil {
				att.Outcome = OutcomeSucceeded
				res.Winner, res.Handle = s.Name, won
			} else {
				att.Outcome, att.Err = OutcomeFailed, err.Error()
			}
		}
		att.Duration = time.Since(start)
		res.Attempts = append(res.Attempts, att)

		x.logger.Debug("Strategy attempted.",
			zap.String("intent", intent),
			zap.String("strategy", s.Name),
			zap.Stringer("outcome", att.Outcome),
			zap.Int("matches", att.Matches),
			zap.String("error", att.Err))

		switch att.Outcome {
		case OutcomeSucceeded:
			return res, nil
		case OutcomeFailed:
			failed = true
		}
	}

	kind := KindNotFound
	if failed {
		kind = KindActionUnreachable
	}
	f := newFailure(kind, intent, nil)
	f.Attempts = res.Attempts
	return res, f
}

// attempt dispatches one strategy against one handle under the attempt bound.
func (x *Executor) attempt(ctx context.Context, s Strategy, h browser.Handle) error {
	actx, cancel := context.WithTimeout(ctx, x.attemptTimeout)
	defer cancel()

	if err := x.dispatch(actx, s, h); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s timed out after %s", s.Action, x.attemptTimeout)
		}
		return err
	}
	if s.Effect == nil {
		return nil
	}
	return x.confirm(actx, *s.Effect)
}

func (x *Executor) dispatch(ctx context.Context, s Strategy, h browser.Handle) error {
	opts := browser.ActionOptions{Force: s.Force}
	switch s.Action {
	case ActionClick:
		return x.drv.Click(ctx, h, opts)
	case ActionCheck:
		return x.drv.SetChecked(ctx, h, true, opts)
	case ActionUncheck:
		return x.drv.SetChecked(ctx, h, false, opts)
	case ActionFill:
		return x.drv.Fill(ctx, h, s.Value, opts)
	case ActionSelectOption:
		return x.drv.SelectOption(ctx, h, s.Option)
	case ActionForceCheck, ActionForceUncheck:
		want := s.Action == ActionForceCheck
		if err := x.drv.SetChecked(ctx, h, want, browser.ActionOptions{Force: true}); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return err
		}
		return x.drv.ForceChecked(ctx, h, want)
	default:
		return fmt.Errorf("unsupported action %s", s.Action)
	}
}

// confirm reads the effect target once. A target that resolves to nothing
// cannot be observed and is accepted.
func (x *Executor) confirm(ctx context.Context, e Effect) error {
	hs, err := x.resolver.Resolve(ctx, e.Target)
	if err != nil {
		return err
	}
	if len(hs) == 0 {
		return nil
	}
	st, err := x.drv.Describe(ctx, hs[0])
	if err != nil {
		return err
	}
	if st.Found && st.Checked != e.Checked {
		return errNoEffect
	}
	return nil
}

// OptionChain is the canonical chain for picking an entry of a checkbox
// backed option list. attrs is the attribute signature shared by the list's
// checkboxes and scope is the open panel, or "" for the whole page.
//
// The option text must equal name, so "Development" never lands on
// "Game Development". Only the label click and the signature scan accept
// longer text, and both rank exact matches first.
func OptionChain(name, attrs string, scope browser.Handle) []Strategy {
	exact, loose := browser.Exactly(name), browser.Containing(name)
	box := func(rel Relation) Target {
		return Target{Label: exact, Relation: rel, Kind: KindCheckbox, Scope: scope}
	}
	effect := Target{Label: exact, Kind: KindCheckbox, Attrs: attrs, Scope: scope}

	scan := ForceChecked("force signature checkbox", Target{
		Label: loose, Relation: RelationScan, Kind: KindCheckbox, Attrs: attrs, Scope: scope,
	}, true)
	scan.Exhaustive = true

	return []Strategy{
		Check("check nested checkbox", box(RelationDescendant)),
		Check("check sibling checkbox", box(RelationSibling)),
		Check("check ancestor checkbox", box(RelationAncestor)),
		Click("click option text", Target{Label: exact, Relation: RelationSelf, Scope: scope}).Expecting(effect, true),
		Click("click option label", Target{Label: loose, Relation: RelationSelf, Kind: KindLabel, Scope: scope}).Expecting(effect, true),
		scan,
	}
}
