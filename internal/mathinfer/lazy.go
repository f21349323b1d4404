package mathinfer

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Lazy initialises a value on first use. Concurrent first callers share one
// initialisation; a failed initialisation is not cached.
type Lazy[T any] struct {
	init  func(ctx context.Context) (T, error)
	group singleflight.Group

	mu     sync.RWMutex
	val    T
	loaded bool
}

func NewLazy[T any](init func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// Get returns the cached value or runs the initialiser. The initialiser runs
// detached from the caller's cancellation so one impatient caller does not
// fail the others waiting on it.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if v, ok := l.cached(); ok {
		return v, nil
	}

	ch := l.group.DoChan("init", func() (any, error) {
		if v, ok := l.cached(); ok {
			return v, nil
		}
		v, err := l.init(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.val, l.loaded = v, true
		l.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Loaded reports whether initialisation has succeeded. It never triggers it.
func (l *Lazy[T]) Loaded() bool {
	_, ok := l.cached()
	return ok
}

func (l *Lazy[T]) cached() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.val, l.loaded
}
