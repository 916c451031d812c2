package crawler

import (
	"context"
	"time"
)

// Pauser abstracts how the crawler waits between page fetches.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPause blocks on a timer while honoring context cancellation.
type TimerPause struct{}

// Pause waits for delay or until the context finishes.
func (TimerPause) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
