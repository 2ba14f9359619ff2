// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives from session (keeping its chromedp values) and is
// canceled when either session or op is done.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(session)
	if deadline, ok := op.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}

	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach keeps ctx's values but drops its deadline and cancellation, for
// cleanup that has to run after the operation context is gone.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
