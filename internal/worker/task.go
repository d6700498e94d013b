// Package worker runs background operations over remote paths: size
// aggregation, ACL writes, deletes and searches. Each operation is a Worker;
// Start runs it on its own goroutine and returns a Task to observe it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/remote"
)

// State is the lifecycle position of a Task.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Failed
	Canceled
)

var stateNames = [...]string{
	Pending:   "pending",
	Running:   "running",
	Completed: "completed",
	Failed:    "failed",
	Canceled:  "canceled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s >= Completed }

// Worker is one background operation producing a T.
type Worker[T any] interface {
	Run(ctx context.Context) (T, error)
	// Activity describes the operation for progress displays.
	Activity() string
}

// Option configures Start.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
	events chan<- event.Event
}

// WithLogger sets the task logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithEvents sends task lifecycle events to ch.
func WithEvents(ch chan<- event.Event) Option {
	return func(s *settings) { s.events = ch }
}

// Task observes a running Worker.
type Task[T any] struct {
	worker   Worker[T]
	activity string
	logger   *slog.Logger
	events   chan<- event.Event

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	// result and err are written once before done is closed.
	result T
	err    error
}

// Start runs w on a new goroutine. Canceling ctx or calling Cancel stops it
// at its next checkpoint.
func Start[T any](ctx context.Context, w Worker[T], opts ...Option) *Task[T] {
	s := settings{logger: slog.Default()}
	for _, o := range opts {
		o(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		worker:   w,
		activity: w.Activity(),
		logger:   s.logger,
		events:   s.events,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

func (t *Task[T]) run(ctx context.Context) {
	defer close(t.done)
	defer t.cancel()

	if !t.transition(Pending, Running) {
		t.err = errdefs.ErrCanceled
		t.emit(event.TaskCanceled, nil)
		return
	}
	t.emit(event.TaskStarted, nil)
	t.logger.Debug("task started", "activity", t.activity)

	result, err := t.worker.Run(ctx)
	switch {
	case err == nil:
		t.result = result
		t.transition(Running, Completed)
		t.emit(event.TaskCompleted, nil)
	case canceled(ctx, err):
		t.err = err
		if !errors.Is(err, errdefs.ErrCanceled) {
			t.err = fmt.Errorf("%w: %w", errdefs.ErrCanceled, err)
		}
		t.transition(Running, Canceled)
		t.emit(event.TaskCanceled, nil)
		t.logger.Debug("task canceled", "activity", t.activity)
	default:
		t.err = errdefs.Background(t.activity, "", err)
		t.transition(Running, Failed)
		t.emit(event.TaskFailed, t.err)
		t.logger.Warn("task failed", "activity", t.activity, "error", t.err)
	}
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, errdefs.ErrCanceled) ||
		errors.Is(err, errdefs.ErrLoginCanceled) ||
		errors.Is(err, context.Canceled)
}

func (t *Task[T]) transition(from, to State) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

func (t *Task[T]) emit(typ event.Type, err error) {
	event.Emit(t.events, event.Event{Type: typ, Activity: t.activity, Error: err})
}

// Wait blocks until the task ends and returns its outcome. A canceled task
// returns an error matching errdefs.ErrCanceled.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}

// Cancel requests cancellation. A task that has not started yet ends
// Canceled without running.
func (t *Task[T]) Cancel() {
	t.transition(Pending, Canceled)
	t.cancel()
}

func (t *Task[T]) State() State          { return State(t.state.Load()) }
func (t *Task[T]) Activity() string      { return t.activity }
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Checkpoint returns an error matching errdefs.ErrCanceled once ctx is done.
// Workers call it at traversal boundaries.
func Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrCanceled, context.Cause(ctx))
	}
	return nil
}

// describe renders a path set for an activity label.
func describe(files []*remote.Path) string {
	switch len(files) {
	case 0:
		return "(none)"
	case 1:
		return label(files[0])
	}
	names := make([]string, 0, 3)
	for _, f := range files[:min(len(files), 3)] {
		names = append(names, label(f))
	}
	s := strings.Join(names, ", ")
	if len(files) > 3 {
		s += fmt.Sprintf(" (%d more)", len(files)-3)
	}
	return s
}

func label(p *remote.Path) string {
	if p.IsRoot() {
		return p.Abs()
	}
	return p.Name()
}
