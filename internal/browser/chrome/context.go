// internal/browser/chrome/context.go
package chrome

import (
	"context"
)

// CombineContext returns a context derived from tab, so it carries the chromedp
// target, that is also cancelled when op is done. An earlier deadline on op is
// copied onto the result.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancelCombined := context.WithCancel(tab)
	cancel := cancelCombined
	if deadline, ok := op.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		cancel = func() {
			cancelDeadline()
			cancelCombined()
		}
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

// opError prefers the operational context's error so callers see the deadline or
// cancellation that stopped the action rather than the combined context's.
func opError(op context.Context, err error) error {
	if err == nil {
		return nil
	}
	if opErr := op.Err(); opErr != nil {
		return opErr
	}
	return err
}
