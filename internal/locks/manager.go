// Package locks serialises publishes per Fastly service. LocalManager covers a
// single process; RedsyncManager coordinates several instances through Redis.
package locks

import (
	"context"
	"sync"
	"time"

	"edge-redirector/internal/common/errors"
)

// Lock is a held lock. Release must be called exactly once.
type Lock interface {
	Key() string
	Release(ctx context.Context) error
	IsHeld() bool
}

// LockManager hands out exclusive locks by key.
type LockManager interface {
	// AcquireLock blocks until the lock is held or ctx is done. ttl bounds how
	// long a lock survives a crashed holder, where the implementation supports it.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	Close() error
}

// ServiceKey is the lock key used for publishes to one service.
func ServiceKey(serviceID string) string {
	return "publish:" + serviceID
}

// LocalManager is an in-process keyed mutex.
type LocalManager struct {
	mu    sync.Mutex
	held  map[string]chan struct{}
	close chan struct{}
	once  sync.Once
}

func NewLocalManager() *LocalManager {
	return &LocalManager{
		held:  make(map[string]chan struct{}),
		close: make(chan struct{}),
	}
}

func (m *LocalManager) AcquireLock(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	for {
		m.mu.Lock()
		select {
		case <-m.close:
			m.mu.Unlock()
			return nil, errors.InternalError("lock manager closed", nil)
		default:
		}

		released, busy := m.held[key]
		if !busy {
			ch := make(chan struct{})
			m.held[key] = ch
			m.mu.Unlock()
			return &localLock{key: key, manager: m, released: ch}, nil
		}
		m.mu.Unlock()

		select {
		case <-released:
		case <-m.close:
		case <-ctx.Done():
			return nil, errors.TimeoutError("acquiring lock "+key, ctx.Err())
		}
	}
}

func (m *LocalManager) release(l *localLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[l.key] == l.released {
		delete(m.held, l.key)
	}
	close(l.released)
}

// Close wakes every waiter and refuses further acquisitions. Held locks stay
// valid until released.
func (m *LocalManager) Close() error {
	m.once.Do(func() { close(m.close) })
	return nil
}

type localLock struct {
	key      string
	manager  *LocalManager
	released chan struct{}
	once     sync.Once
}

func (l *localLock) Key() string { return l.key }

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() { l.manager.release(l) })
	return nil
}

func (l *localLock) IsHeld() bool {
	select {
	case <-l.released:
		return false
	default:
		return true
	}
}

var (
	_ LockManager = (*LocalManager)(nil)
	_ LockManager = (*RedsyncManager)(nil)
)
