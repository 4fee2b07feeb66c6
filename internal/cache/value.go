package cache

import (
	"context"
	"sync"
	"time"
)

// LoadFunc produces a fresh value.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Value 持有一个值及其最近刷新时间，由调用方显式持有并注入，替代包级全局缓存。
// 刷新在互斥锁内进行，并发调用者共享同一次加载结果。
type Value[T any] struct {
	mu        sync.Mutex
	load      LoadFunc[T]
	nowFn     func() time.Time
	val       T
	refreshed time.Time
	ok        bool
}

func New[T any](load LoadFunc[T]) *Value[T] {
	return &Value[T]{load: load, nowFn: time.Now}
}

// WithClock overrides the clock; used by tests.
func (v *Value[T]) WithClock(now func() time.Time) *Value[T] {
	if now != nil {
		v.nowFn = now
	}
	return v
}

// GetOrRefresh returns the cached value when it is younger than maxAge, otherwise reloads it.
// maxAge <= 0 always reloads. A failed reload keeps the previous value and returns the error.
func (v *Value[T]) GetOrRefresh(ctx context.Context, maxAge time.Duration) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.nowFn()
	if v.ok && maxAge > 0 && now.Sub(v.refreshed) < maxAge {
		return v.val, nil
	}
	fresh, err := v.load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	v.val = fresh
	v.refreshed = now
	v.ok = true
	return fresh, nil
}

// Peek returns the cached value without loading.
func (v *Value[T]) Peek() (T, time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.refreshed, v.ok
}
