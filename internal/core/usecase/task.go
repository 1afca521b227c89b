package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

// Task is one cancellable polling loop running in its own goroutine.
type Task[T any] struct {
	cancel context.CancelFunc
	live   *liveness
	done   chan struct{}

	mu     sync.Mutex
	state  domain.LoopState
	result T
	err    error
}

func startTask[T any](
	parent context.Context,
	onFinish func(domain.LoopState),
	loop func(ctx context.Context, live *liveness) (T, error),
) *Task[T] {
	ctx, cancel := context.WithCancel(parent)
	t := &Task[T]{
		cancel: cancel,
		live:   newLiveness(),
		done:   make(chan struct{}),
		state:  domain.LoopPolling,
	}

	go func() {
		defer close(t.done)
		defer cancel()

		result, err := loop(ctx, t.live)
		finished := t.live.run(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.result = result
			t.err = err
			switch {
			case err == nil:
				t.state = domain.LoopSucceeded
			case ctx.Err() != nil && parent.Err() != nil:
				t.state = domain.LoopCancelled
			default:
				t.state = domain.LoopFailed
			}
		})
		if !finished {
			t.markCancelled()
		}
		if onFinish != nil {
			onFinish(t.State())
		}
	}()

	return t
}

// Cancel stops the loop. After Cancel returns no further callback of the
// loop runs. It is a no-op for a finished task.
func (t *Task[T]) Cancel() {
	t.live.kill()
	t.cancel()
	t.markCancelled()
}

// Wait blocks until the loop finishes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

func (t *Task[T]) State() domain.LoopState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task[T]) markCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Finished() {
		return
	}
	var zero T
	t.state = domain.LoopCancelled
	t.result = zero
	t.err = context.Canceled
}
