package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/widgetpilot/internal/browser/snapshot"
)

const fieldsPage = `<html><body>
<input id="w" type="number" value="640">
<input id="full" type="checkbox">
<div id="toast" style="display: none">Код скопирован</div>
</body></html>`

func TestVerify(t *testing.T) {
	t.Run("waits for a late value", func(t *testing.T) {
		ctx := testContext(t)
		d := newSnapshot(t, fieldsPage)
		e := newTestEngine(t, d)
		w := handleOf(t, d, "#w")

		done := make(chan struct{})
		d.After(50*time.Millisecond, func(d *snapshot.Driver) {
			d.SetValue("#w", "800")
			close(done)
		})
		obs, err := e.Verifier.Verify(ctx, Expectation{Handle: w, Property: PropValue, Value: "800"})
		require.NoError(t, err)
		assert.Equal(t, "800", obs.State.Value)
		assert.Greater(t, obs.Polls, 1)
		<-done
	})

	t.Run("timeout reports the last observation", func(t *testing.T) {
		ctx := testContext(t)
		d := newSnapshot(t, fieldsPage)
		e := newTestEngine(t, d)

		_, err := e.Verifier.Verify(ctx, Expectation{
			Intent:   "set width 900",
			Handle:   handleOf(t, d, "#w"),
			Property: PropValue,
			Value:    "900",
			Timeout:  60 * time.Millisecond,
		})
		require.ErrorIs(t, err, ErrVerificationTimeout)
		assert.NotErrorIs(t, err, ErrActionUnreachable)

		var f *Failure
		require.True(t, errors.As(err, &f))
		assert.Equal(t, "640", f.Observed)
		assert.Equal(t, "set width 900", f.Intent)
	})

	t.Run("targets are re-resolved on each poll", func(t *testing.T) {
		ctx := testContext(t)
		d := newSnapshot(t, fieldsPage)
		e := newTestEngine(t, d)

		target := CSS("#toast")
		_, err := e.Verifier.Verify(ctx, Expectation{Target: &target, Property: PropHidden})
		require.NoError(t, err)

		missing := CSS("#gone")
		_, err = e.Verifier.Verify(ctx, Expectation{Target: &missing, Property: PropHidden})
		assert.NoError(t, err, "an absent element counts as hidden")

		obs, err := e.Verifier.Verify(ctx, Expectation{Target: &missing, Property: PropVisible, Timeout: 30 * time.Millisecond})
		assert.ErrorIs(t, err, ErrVerificationTimeout)
		assert.False(t, obs.State.Found)
	})

	t.Run("checked state", func(t *testing.T) {
		ctx := testContext(t)
		d := newSnapshot(t, fieldsPage)
		e := newTestEngine(t, d)
		full := handleOf(t, d, "#full")

		_, err := e.Verifier.Verify(ctx, Expectation{Handle: full, Property: PropChecked, Checked: false})
		require.NoError(t, err)

		_, err = e.Verifier.Verify(ctx, Expectation{Handle: full, Property: PropChecked, Checked: true, Timeout: 30 * time.Millisecond})
		var f *Failure
		require.True(t, errors.As(err, &f))
		assert.Equal(t, "false", f.Observed)
	})

	t.Run("verification never mutates", func(t *testing.T) {
		ctx := testContext(t)
		d := newSnapshot(t, fieldsPage)
		e := newTestEngine(t, d)
		full := handleOf(t, d, "#full")

		_, _ = e.Verifier.Verify(ctx, Expectation{Handle: full, Property: PropChecked, Checked: true, Timeout: 30 * time.Millisecond})
		st, err := d.Describe(ctx, full)
		require.NoError(t, err)
		assert.False(t, st.Checked)
	})

	t.Run("parent cancellation is not a verification failure", func(t *testing.T) {
		d := newSnapshot(t, fieldsPage)
		e := newTestEngine(t, d)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(30*time.Millisecond, cancel)

		_, err := e.Verifier.Verify(ctx, Expectation{Handle: handleOf(t, d, "#w"), Property: PropValue, Value: "nope", Timeout: time.Second})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrVerificationTimeout)
	})
}

func TestUntil(t *testing.T) {
	d := newSnapshot(t, fieldsPage)
	e := newTestEngine(t, d)
	ctx := testContext(t)

	calls := 0
	observed, err := e.Verifier.Until(ctx, "third time lucky", 0, func(context.Context) (bool, string, error) {
		calls++
		if calls < 3 {
			return false, "", errors.New("transient")
		}
		return true, "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", observed)
	assert.Equal(t, 3, calls)

	_, err = e.Verifier.Until(ctx, "never", 30*time.Millisecond, func(context.Context) (bool, string, error) {
		return false, "", errors.New("still broken")
	})
	assert.ErrorIs(t, err, ErrVerificationTimeout)
	assert.ErrorContains(t, err, "still broken")
}
