package locks

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"edge-redirector/internal/common/errors"
	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/redis"
)

// RedsyncManager implements LockManager with the Redlock algorithm from
// go-redsync/redsync/v4. Held locks are extended in the background at a third
// of their TTL so a long publish does not lose its lock.
type RedsyncManager struct {
	redsync    *redsync.Redsync
	localLocks map[string]*RedsyncLock
	mutex      sync.Mutex
	logger     logging.Logger
	retryDelay time.Duration
}

// RedsyncLock wraps a redsync.Mutex
type RedsyncLock struct {
	mutex   *redsync.Mutex
	key     string
	ttl     time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	manager *RedsyncManager
	once    sync.Once
}

// NewRedsyncManager creates a lock manager over redisClient
func NewRedsyncManager(redisClient *redis.Client, logger logging.Logger) (*RedsyncManager, error) {
	if redisClient == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	pool := goredis.NewPool(redisClient.GetGoRedisClient())

	return &RedsyncManager{
		redsync:    redsync.New(pool),
		localLocks: make(map[string]*RedsyncLock),
		logger:     logger,
		retryDelay: 100 * time.Millisecond,
	}, nil
}

// AcquireLock retries until the lock is taken or ctx is done. Redis being
// unreachable looks the same as the lock being busy; the last error is wrapped
// in the timeout.
func (rm *RedsyncManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	mutex := rm.redsync.NewMutex("lock:"+key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	for {
		err := mutex.LockContext(ctx)
		if err == nil {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.TimeoutError("acquiring lock "+key, err)
		case <-time.After(rm.retryDelay):
		}
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &RedsyncLock{
		mutex:   mutex,
		key:     key,
		ttl:     ttl,
		ctx:     lockCtx,
		cancel:  cancel,
		manager: rm,
	}

	rm.mutex.Lock()
	rm.localLocks[key] = lock
	rm.mutex.Unlock()

	go rm.renewLock(lock)

	return lock, nil
}

func (rm *RedsyncManager) renewLock(lock *RedsyncLock) {
	renewInterval := lock.ttl / 3
	if renewInterval < time.Second {
		renewInterval = time.Second
	}

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.mutex.ExtendContext(ctx)
			cancel()

			if err != nil || !ok {
				rm.logger.Warn("Lost distributed lock",
					logging.String("key", lock.key),
					logging.Err(err),
				)
				_ = lock.Release(context.Background())
				return
			}
		}
	}
}

func (rm *RedsyncManager) releaseLock(ctx context.Context, lock *RedsyncLock) error {
	rm.mutex.Lock()
	if rm.localLocks[lock.key] == lock {
		delete(rm.localLocks, lock.key)
	}
	rm.mutex.Unlock()

	lock.cancel()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := lock.mutex.UnlockContext(ctx); err != nil {
		return errors.ConnectionError("failed to release distributed lock", err)
	}
	return nil
}

// Close releases all locks held by this manager
func (rm *RedsyncManager) Close() error {
	rm.mutex.Lock()
	held := make([]*RedsyncLock, 0, len(rm.localLocks))
	for _, lock := range rm.localLocks {
		held = append(held, lock)
	}
	rm.mutex.Unlock()

	for _, lock := range held {
		_ = lock.Release(context.Background())
	}
	return nil
}

func (rl *RedsyncLock) Key() string {
	return rl.key
}

// Release unlocks in Redis and stops renewal. Calls after the first are no-ops.
func (rl *RedsyncLock) Release(ctx context.Context) error {
	var err error
	rl.once.Do(func() {
		err = rl.manager.releaseLock(ctx, rl)
	})
	return err
}

func (rl *RedsyncLock) IsHeld() bool {
	select {
	case <-rl.ctx.Done():
		return false
	default:
		return true
	}
}
