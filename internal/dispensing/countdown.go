package dispensing

import (
	"context"
	"time"
)

// Countdown emits SecondsRemaining once immediately and then on every tick until it
// reaches zero, after which the channel is closed. The channel is also closed when ctx
// is cancelled.
func Countdown(ctx context.Context, expiresAt time.Time, tick time.Duration, now func() time.Time) <-chan int {
	if tick <= 0 {
		tick = time.Second
	}
	if now == nil {
		now = time.Now
	}
	out := make(chan int, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			remaining := SecondsRemaining(expiresAt, now())
			select {
			case out <- remaining:
			case <-ctx.Done():
				return
			}
			if remaining == 0 {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
