// Package reconnect holds the retry schedule for long-lived links such as the
// host SDK websocket.
package reconnect

import (
	"context"
	"time"
)

// Backoff maps a retry attempt to a delay. Attempts past the end of Steps wait
// Max.
type Backoff struct {
	Steps []time.Duration
	Max   time.Duration
}

// Default retries quickly three times, then backs off to 5s, 15s and 30s.
var Default = Backoff{
	Steps: []time.Duration{
		time.Second, time.Second, time.Second,
		5 * time.Second, 5 * time.Second, 5 * time.Second,
		15 * time.Second, 15 * time.Second, 15 * time.Second,
	},
	Max: 30 * time.Second,
}

// Delay returns the wait before attempt. The zero Backoff uses Default.
func (b Backoff) Delay(attempt int) time.Duration {
	if len(b.Steps) == 0 && b.Max == 0 {
		b = Default
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt < len(b.Steps) {
		return b.Steps[attempt]
	}
	return b.Max
}

// Wait sleeps for the delay of attempt. It returns ctx.Err() if ctx ends
// first.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay returns Default.Delay(attempt).
func Delay(attempt int) time.Duration { return Default.Delay(attempt) }
