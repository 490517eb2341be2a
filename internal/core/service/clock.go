package service

import (
	"context"
	"time"
)

type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep is used by tests that drive the clock themselves.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
