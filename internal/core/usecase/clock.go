package usecase

import (
	"sync"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock used outside of tests.
func SystemClock() ports.Clock {
	return systemClock{}
}

// liveness gates every callback of one loop. Once killed, no callback runs
// and no loop state is mutated, even if a request is still in flight.
// Callbacks run under the lock, so they must not cancel their own loop.
type liveness struct {
	mu    sync.Mutex
	alive bool
}

func newLiveness() *liveness {
	return &liveness{alive: true}
}

func (l *liveness) run(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.alive {
		return false
	}
	fn()
	return true
}

func (l *liveness) kill() {
	l.mu.Lock()
	l.alive = false
	l.mu.Unlock()
}
