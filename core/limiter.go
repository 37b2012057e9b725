package core

import (
	"fmt"
	"sync"
)

// IterationGuard enforces a maximum number of reasoning iterations per run.
type IterationGuard struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationGuard creates a new guard with a max number of iterations.
// If max == 0, unlimited iterations are allowed.
func NewIterationGuard(max int) *IterationGuard {
	return &IterationGuard{max: max}
}

// Increment increases the iteration counter and returns an error wrapping
// ErrIterationLimitExceeded once the limit is exceeded.
func (g *IterationGuard) Increment() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.count++
	if g.max > 0 && g.count > g.max {
		return fmt.Errorf("%w: max %d iterations", ErrIterationLimitExceeded, g.max)
	}

	return nil
}

// Count returns the current number of iterations.
func (g *IterationGuard) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.count
}

// Remaining returns how many iterations are left before hitting the limit.
func (g *IterationGuard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.max == 0 {
		return -1 // unlimited
	}

	return g.max - g.count
}
