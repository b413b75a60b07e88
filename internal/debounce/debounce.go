// Package debounce coalesces bursts of values into a single emission per
// quiet period.
package debounce

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWindow is the quiet period used by the auto-sync loop.
const DefaultWindow = 2 * time.Second

// Latest forwards the most recent value from in once no new value has
// arrived for window. Intermediate values are dropped. A value that is
// ready but not yet taken by the consumer is discarded when a newer value
// arrives.
//
// The returned channel is closed when ctx is done, or after in is closed
// and the last pending value has been delivered.
func Latest[T any](ctx context.Context, clock clockwork.Clock, window time.Duration, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)

		var (
			timer   clockwork.Timer
			fired   <-chan time.Time
			pending T
			ready   T
			send    chan<- T
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for in != nil || fired != nil || send != nil {
			select {
			case <-ctx.Done():
				return

			case v, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				pending = v
				send = nil
				if timer == nil {
					timer = clock.NewTimer(window)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.Chan():
						default:
						}
					}
					timer.Reset(window)
				}
				fired = timer.Chan()

			case <-fired:
				fired = nil
				ready = pending
				send = out

			case send <- ready:
				send = nil
			}
		}
	}()
	return out
}
