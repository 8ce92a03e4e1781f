// Package concurrency serializes writers of the same pull request inside
// one process.
package concurrency

import (
	"context"
	"fmt"
	"sync"
)

// Key identifies a pull request, e.g. "acme/app#7".
func Key(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// Manager hands out one lock per key.
type Manager struct {
	locks sync.Map // map[string]chan struct{}
}

// NewManager creates a new concurrency manager
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) slot(key string) chan struct{} {
	actual, _ := m.locks.LoadOrStore(key, make(chan struct{}, 1))
	return actual.(chan struct{})
}

// Acquire waits for the lock for key until ctx is done.
func (m *Manager) Acquire(ctx context.Context, key string) error {
	select {
	case m.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %s: %w", key, ctx.Err())
	}
}

// Release releases the lock for key. Releasing an unheld lock is a no-op.
func (m *Manager) Release(key string) {
	if actual, ok := m.locks.Load(key); ok {
		select {
		case <-actual.(chan struct{}):
		default:
		}
	}
}
