// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext creates a context derived from primary that is also canceled
// when secondary is done. Values come from primary only, which matters for
// chromedp where primary carries the CDP target and secondary carries the
// operation's deadline. A deadline on secondary is copied over so callers see
// context.DeadlineExceeded rather than a bare cancellation.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	if deadline, ok := secondary.Deadline(); ok {
		combined, cancel = context.WithDeadline(primary, deadline)
	} else {
		combined, cancel = context.WithCancel(primary)
	}

	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context that inherits values from ctx but is not canceled
// when ctx is. Used for cleanup that has to outlive an operation, such as
// closing a tab after the scenario deadline fired.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// RemainingOr returns the time left before ctx's deadline, or fallback when
// ctx has none. Backends without context support use it to size their own timeouts.
func RemainingOr(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return fallback
}
