package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/mocks"
)

const unreachableOption = `<html><body>
<div class="checkselect-popup">
  <div class="opt"><input id="ig" type="checkbox" name="type" value="ig" disabled style="opacity: 0"><span>Igaming</span></div>
  <div class="opt"><input id="bc" type="checkbox" name="type" value="bc"><span>Blockchain</span></div>
</div>
</body></html>`

const labelledOption = `<html><body>
<div class="checkselect-popup">
  <label><input id="bc" type="checkbox" name="type" value="bc"> Blockchain</label>
  <button id="ghost" style="display: none">Скрытая</button>
</div>
</body></html>`

const overlappingOptions = `<html><body>
<div class="checkselect-popup">
  <label><input id="gamedev" type="checkbox" name="type" value="gamedev"> Game Development</label>
  <label><input id="dev" type="checkbox" name="type" value="dev"> Development</label>
</div>
</body></html>`

var ignoreTiming = cmpopts.IgnoreFields(Attempt{}, "Err", "Duration", "Matches")

func TestOptionChainEscapeHatch(t *testing.T) {
	ctx := testContext(t)
	d := newSnapshot(t, unreachableOption)
	e := newTestEngine(t, d)

	chain := OptionChain("Igaming", `[name="type"]`, "")
	res, err := e.Executor.Execute(ctx, `select theme "Igaming"`, chain)
	require.NoError(t, err)

	want := []Attempt{
		{Strategy: "check nested checkbox", Action: ActionCheck, Outcome: OutcomeSkipped},
		{Strategy: "check sibling checkbox", Action: ActionCheck, Outcome: OutcomeFailed},
		{Strategy: "check ancestor checkbox", Action: ActionCheck, Outcome: OutcomeFailed},
		{Strategy: "click option text", Action: ActionClick, Outcome: OutcomeFailed},
		{Strategy: "click option label", Action: ActionClick, Outcome: OutcomeSkipped},
		{Strategy: "force signature checkbox", Action: ActionForceCheck, Outcome: OutcomeSucceeded},
	}
	if diff := cmp.Diff(want, res.Attempts, ignoreTiming); diff != "" {
		t.Errorf("attempt log mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "force signature checkbox", res.Winner)
	assert.Equal(t, handleOf(t, d, "#ig"), res.Handle)

	st, err := d.Describe(ctx, handleOf(t, d, "#ig"))
	require.NoError(t, err)
	assert.True(t, st.Checked)

	other, err := d.Describe(ctx, handleOf(t, d, "#bc"))
	require.NoError(t, err)
	assert.False(t, other.Checked, "neighbouring option must stay untouched")
}

func TestOptionChainFirstStrategyWins(t *testing.T) {
	ctx := testContext(t)
	d := newSnapshot(t, labelledOption)
	e := newTestEngine(t, d)

	res, err := e.Executor.Execute(ctx, "select", OptionChain("blockchain", `[name="type"]`, ""))
	require.NoError(t, err)
	assert.Equal(t, "check nested checkbox", res.Winner)
	require.Len(t, res.Attempts, 1)

	st, _ := d.Describe(ctx, handleOf(t, d, "#bc"))
	assert.True(t, st.Checked)

	// Checking is idempotent: running the chain again keeps the state.
	_, err = e.Executor.Execute(ctx, "select", OptionChain("blockchain", `[name="type"]`, ""))
	require.NoError(t, err)
	st, _ = d.Describe(ctx, handleOf(t, d, "#bc"))
	assert.True(t, st.Checked)
}

func TestOptionChainMatchesWholeName(t *testing.T) {
	ctx := testContext(t)
	d := newSnapshot(t, overlappingOptions)
	e := newTestEngine(t, d)

	res, err := e.Executor.Execute(ctx, "select", OptionChain("development", `[name="type"]`, ""))
	require.NoError(t, err)
	assert.Equal(t, "check nested checkbox", res.Winner)
	assert.Equal(t, handleOf(t, d, "#dev"), res.Handle)

	st, _ := d.Describe(ctx, handleOf(t, d, "#dev"))
	assert.True(t, st.Checked)
	st, _ = d.Describe(ctx, handleOf(t, d, "#gamedev"))
	assert.False(t, st.Checked, "a longer name containing the option must stay untouched")
}

func TestExecuteFailureKinds(t *testing.T) {
	ctx := testContext(t)
	d := newSnapshot(t, labelledOption)
	e := newTestEngine(t, d)

	t.Run("every strategy skipped", func(t *testing.T) {
		_, err := e.Executor.Execute(ctx, "select theme Марс", OptionChain("Марс", `[name="type"]`, ""))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))

		var f *Failure
		require.True(t, errors.As(err, &f))
		assert.Equal(t, "select theme Марс", f.Intent)
		assert.Len(t, f.Attempts, 6)
		assert.Contains(t, err.Error(), "select theme Марс: target not found")
	})

	t.Run("matches that cannot be acted on", func(t *testing.T) {
		_, err := e.Executor.Execute(ctx, "press hidden", []Strategy{
			Click("click hidden button", CSS("#ghost")),
			Click("click missing button", CSS("#nope")),
		})
		assert.ErrorIs(t, err, ErrActionUnreachable)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "click hidden button: failed (element <button> is not visible)")
	})

	t.Run("forcing reaches hidden elements", func(t *testing.T) {
		res, err := e.Executor.Execute(ctx, "press hidden", []Strategy{
			Click("click hidden button", CSS("#ghost")),
			Click("force hidden button", CSS("#ghost")).Forced(),
		})
		require.NoError(t, err)
		assert.Equal(t, "force hidden button", res.Winner)
	})

	t.Run("parent cancellation aborts the chain", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Executor.Execute(cctx, "select", OptionChain("Blockchain", `[name="type"]`, ""))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, KindUnknown, KindOf(err))
	})
}

func TestExecuteAttemptTimeout(t *testing.T) {
	ctx := testContext(t)
	drv := new(mocks.MockDriver)
	drv.On("QueryAll", mock.Anything, browser.Handle(""), "#slow").Return([]browser.Handle{"p-1"}, nil)
	drv.On("QueryAll", mock.Anything, browser.Handle(""), "#fast").Return([]browser.Handle{"p-2"}, nil)
	drv.On("Click", mock.Anything, browser.Handle("p-1"), browser.ActionOptions{}).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)
	drv.On("Click", mock.Anything, browser.Handle("p-2"), browser.ActionOptions{}).Return(nil)

	cfg := testEngineConfig()
	cfg.AttemptTimeout = 30 * time.Millisecond
	e := New(drv, cfg, zaptest.NewLogger(t))

	res, err := e.Executor.Execute(ctx, "press", []Strategy{
		Click("slow", CSS("#slow")),
		Click("fast", CSS("#fast")),
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Winner)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, OutcomeFailed, res.Attempts[0].Outcome)
	assert.Contains(t, res.Attempts[0].Err, "timed out after 30ms")
	drv.AssertExpectations(t)
}

func TestExecuteExhaustive(t *testing.T) {
	ctx := testContext(t)
	drv := new(mocks.MockDriver)
	drv.On("QueryAll", mock.Anything, browser.Handle(""), "button").Return([]browser.Handle{"p-1", "p-2", "p-3"}, nil)
	drv.On("Click", mock.Anything, browser.Handle("p-1"), browser.ActionOptions{}).Return(errors.New("intercepted"))
	drv.On("Click", mock.Anything, browser.Handle("p-2"), browser.ActionOptions{}).Return(nil)

	e := newTestEngine(t, drv)

	single := Click("first only", CSS("button"))
	_, err := e.Executor.Execute(ctx, "press", []Strategy{single})
	assert.ErrorIs(t, err, ErrActionUnreachable)

	every := single
	every.Exhaustive = true
	res, err := e.Executor.Execute(ctx, "press", []Strategy{every})
	require.NoError(t, err)
	assert.Equal(t, browser.Handle("p-2"), res.Handle)
	assert.Equal(t, 3, res.Attempts[0].Matches)
	drv.AssertNotCalled(t, "Click", mock.Anything, browser.Handle("p-3"), mock.Anything)
}

func TestFailureMessage(t *testing.T) {
	f := &Failure{
		Kind:     KindVerificationTimeout,
		Intent:   "set width 800",
		Observed: "640",
	}
	assert.Equal(t, `set width 800: verification timed out (observed "640")`, f.Error())
	assert.ErrorIs(t, f, ErrVerificationTimeout)

	wrapped := errors.Join(errors.New("context"), f)
	assert.Equal(t, KindVerificationTimeout, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "external_unavailable", KindExternalUnavailable.String())
}
