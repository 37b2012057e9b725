package session

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentd/core"
)

// Locker admits at most one in-flight run per session. It is safe for
// concurrent use; the zero value is not usable, use NewLocker.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocker creates an empty locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

// TryLock claims sessionID without blocking. It fails with
// core.ErrSessionBusy while another holder has not released it. The returned
// release func is idempotent.
func (l *Locker) TryLock(sessionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[sessionID]; busy {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionBusy, sessionID)
	}

	l.held[sessionID] = struct{}{}

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}, nil
}

// Busy reports whether sessionID is currently locked.
func (l *Locker) Busy(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, busy := l.held[sessionID]

	return busy
}
