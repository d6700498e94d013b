package worker

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/bamsammich/ferry/internal/errdefs"
)

// RetryConfig controls Retry.
type RetryConfig struct {
	MaxAttempts int           // total runs, including the first
	InitialWait time.Duration // wait before the second run
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of the wait, 0-1
}

// DefaultRetryConfig returns three attempts with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2,
		Jitter:      0.1,
	}
}

// Retry reruns w while it fails with a retriable access denial
// (errdefs.RetriableAccessDeniedError). A backoff carried by the error wins
// over the computed one. Other failures and cancellations end it at once.
func Retry[T any](w Worker[T], cfg RetryConfig) Worker[T] {
	return &retrying[T]{Worker: w, cfg: cfg}
}

type retrying[T any] struct {
	Worker[T]
	cfg RetryConfig
}

func (r *retrying[T]) Run(ctx context.Context) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = r.Worker.Run(ctx)
		if err == nil {
			return result, nil
		}
		backoff, ok := errdefs.Retriable(err)
		if !ok || attempt >= max(r.cfg.MaxAttempts, 1) {
			return result, err
		}
		if backoff <= 0 {
			backoff = r.cfg.wait(attempt)
		}
		select {
		case <-ctx.Done():
			return result, Checkpoint(ctx)
		case <-time.After(backoff):
		}
	}
}

func (c RetryConfig) wait(attempt int) time.Duration {
	wait := float64(c.InitialWait) * math.Pow(max(c.Multiplier, 1), float64(attempt-1))
	if c.MaxWait > 0 && wait > float64(c.MaxWait) {
		wait = float64(c.MaxWait)
	}
	if c.Jitter > 0 {
		wait += wait * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(wait)
}
