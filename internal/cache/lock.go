package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// LockCoordinator 管理 (group, key) 级别的建议锁标记，用于判断是否有其他进程正在重算。
// 锁本身不会阻塞任何调用；过期的锁由下一个观察者删除，没有后台清理。
type LockCoordinator struct {
	store LockStore
	now   func() time.Time

	mu      sync.RWMutex
	timeout time.Duration
}

// NewLockCoordinator 构造锁协调器，timeout 通常为新鲜度窗口的一半。
func NewLockCoordinator(store LockStore, timeout time.Duration, now func() time.Time) *LockCoordinator {
	if now == nil {
		now = time.Now
	}
	l := &LockCoordinator{store: store, now: now}
	l.SetTimeout(timeout)
	return l
}

// SetTimeout 调整锁的最长存活时间，负值按 0 处理。
func (l *LockCoordinator) SetTimeout(timeout time.Duration) {
	if timeout < 0 {
		timeout = 0
	}
	l.mu.Lock()
	l.timeout = timeout
	l.mu.Unlock()
}

// Timeout 返回当前的锁存活时间。
func (l *LockCoordinator) Timeout() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.timeout
}

// IsPending 报告是否存在未过期的锁。发现过期或损坏的锁时会立即删除并返回 false，
// expired 为 true 表示本次调用回收了一个锁。
func (l *LockCoordinator) IsPending(ctx context.Context, group, key string) (pending bool, expired bool, err error) {
	createdAt, err := l.store.ReadLock(ctx, group, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return false, false, nil
	case errors.Is(err, ErrCorruptLock):
		return false, true, l.store.RemoveLock(ctx, group, key)
	default:
		return false, false, err
	}

	now := truncateSeconds(l.now())
	if now.After(createdAt.Add(l.Timeout())) {
		return false, true, l.store.RemoveLock(ctx, group, key)
	}
	return true, false, nil
}

// Acquire 尝试以排他方式创建锁标记。锁已被持有时返回 (false, nil)。
func (l *LockCoordinator) Acquire(ctx context.Context, group, key string) (bool, error) {
	err := l.store.CreateLock(ctx, group, key, truncateSeconds(l.now()))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrLockHeld):
		return false, nil
	default:
		return false, err
	}
}

// Release 无条件删除锁标记。
func (l *LockCoordinator) Release(ctx context.Context, group, key string) error {
	return l.store.RemoveLock(ctx, group, key)
}

func truncateSeconds(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0)
}
