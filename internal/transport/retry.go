package transport

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds how often and how fast an operation is retried.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Clock    clockwork.Clock
}

// Retry runs op until it succeeds, returns an error retryable rejects, or
// the attempts are used up. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, retryable func(error) bool, op func() (T, error)) (T, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; ; attempt++ {
		var v T
		v, err = op()
		if err == nil {
			return v, nil
		}
		if !retryable(err) || attempt >= p.Attempts {
			return zero, err
		}
		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-p.Clock.After(p.Delay):
			}
		} else if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
}
