package aggregator

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// BarrierState is the completion barrier's lifecycle state.
type BarrierState string

const (
	BarrierCollecting BarrierState = "collecting"
	BarrierFinalized  BarrierState = "finalized"
)

// Barrier tracks how many workers have fully merged and replayed against the
// expected total. When the last one arrives it transitions to Finalized and
// invokes the finalize hook exactly once with the failure count in effect at
// that moment. No transition is possible afterwards.
type Barrier struct {
	log      log.Logger
	expected int
	finalize func(failures int)

	mu        sync.Mutex
	completed int
	state     BarrierState
}

// NewBarrier creates a barrier for the given expected worker count. A zero
// expected count finalizes immediately with zero failures: there is nothing
// to wait for. A negative count is a configuration error.
func NewBarrier(expected int, finalize func(failures int), logger log.Logger) (*Barrier, error) {
	if expected < 0 {
		return nil, fmt.Errorf("expected worker count must not be negative, got %d", expected)
	}
	if finalize == nil {
		return nil, fmt.Errorf("finalize hook is required")
	}

	b := &Barrier{
		log:      logger.New("component", "barrier"),
		expected: expected,
		finalize: finalize,
		state:    BarrierCollecting,
	}

	if expected == 0 {
		b.state = BarrierFinalized
		b.log.Info("No workers expected, finalizing immediately")
		finalize(0)
	}
	return b, nil
}

// Complete records one worker completion. failures is the failure counter
// value at the time of the call; the value passed with the final completion
// is the one handed to the finalize hook. Completions after finalization are
// logged and dropped.
func (b *Barrier) Complete(failures int) {
	b.mu.Lock()
	if b.state == BarrierFinalized {
		b.mu.Unlock()
		b.log.Warn("Worker completion after finalization, dropping", "expected", b.expected)
		return
	}

	b.completed++
	done := b.completed == b.expected
	if done {
		b.state = BarrierFinalized
	}
	completed := b.completed
	b.mu.Unlock()

	b.log.Debug("Worker completion recorded", "completed", completed, "expected", b.expected)

	// The finalize hook runs outside the lock; nothing here holds a lock
	// across a call that could block.
	if done {
		b.log.Info("All workers accounted for, finalizing", "workers", b.expected, "failures", failures)
		b.finalize(failures)
	}
}

// State returns the current barrier state.
func (b *Barrier) State() BarrierState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Completed returns how many workers have completed so far.
func (b *Barrier) Completed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}
