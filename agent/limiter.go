package agent

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCallLimitExceeded is returned once a swarm has used up its model calls.
var ErrCallLimitExceeded = errors.New("exceeded max model calls")

// CallLimiter enforces a maximum number of model calls for the lifetime of a
// swarm.
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a limiter. If max <= 0, unlimited calls are allowed.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Increment reserves one call and fails when the limit is exceeded. A
// rejected call is not counted.
func (cl *CallLimiter) Increment() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.max > 0 && cl.count >= cl.max {
		return fmt.Errorf("%w: %d", ErrCallLimitExceeded, cl.max)
	}
	cl.count++

	return nil
}

// Count returns the number of calls made.
func (cl *CallLimiter) Count() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.count
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (cl *CallLimiter) Remaining() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.max <= 0 {
		return -1 // unlimited
	}

	return cl.max - cl.count
}
