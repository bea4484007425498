package timer

import (
	"context"
	"log/slog"
	"time"
)

type TimerAction int

const (
	Start TimerAction = iota
	Stop
)

// Ticker fires on timeout every period while started. It begins stopped and returns when
// ctx is done. A tick the receiver has not taken yet is not queued twice.
func Ticker(ctx context.Context, period time.Duration, timeout chan<- struct{}, action <-chan TimerAction) {
	t := time.NewTimer(period)
	t.Stop()
	running := false
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case a := <-action:
			switch a {
			case Start:
				running = true
				resetTimer(t, period)
			case Stop:
				running = false
				t.Stop()
			}
		case <-t.C:
			select {
			case timeout <- struct{}{}:
				slog.Debug("Timer timed out")
			default:
				slog.Debug("Tick dropped, previous one still pending")
			}
			if running {
				t.Reset(period)
			}
		}
	}
}

// Stops the timer and resets it.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
