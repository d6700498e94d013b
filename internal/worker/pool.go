package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bamsammich/ferry/internal/errdefs"
)

// Pool bounds how many workers run at once. Tasks waiting for a slot are
// already Running; canceling one releases its place in the queue.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool returns a pool admitting n concurrent workers (at least one).
func NewPool(n int) *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(max(n, 1)))}
}

// Submit starts w under p's limit.
func Submit[T any](ctx context.Context, p *Pool, w Worker[T], opts ...Option) *Task[T] {
	p.wg.Add(1)
	t := Start[T](ctx, gated[T]{Worker: w, sem: p.sem}, opts...)
	go func() {
		<-t.Done()
		p.wg.Done()
	}()
	return t
}

// Wait blocks until every submitted task has ended.
func (p *Pool) Wait() { p.wg.Wait() }

type gated[T any] struct {
	Worker[T]
	sem *semaphore.Weighted
}

func (g gated[T]) Run(ctx context.Context) (T, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", errdefs.ErrCanceled, err)
	}
	defer g.sem.Release(1)
	return g.Worker.Run(ctx)
}
