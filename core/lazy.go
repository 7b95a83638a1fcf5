package core

import "sync"

// Lazy 进程内只创建一次的共享句柄
//
// Unlike sync.Once a failed init is not cached, so the next caller retries.
// Concurrent first callers block on the mutex and share one instance.
type Lazy[T any] struct {
	mu    sync.Mutex
	done  bool
	value T
	init  func() (T, error)
}

func NewLazy[T any](init func() (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

func (l *Lazy[T]) Get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.value, nil
	}
	v, err := l.init()
	if err != nil {
		var zero T
		return zero, err
	}
	l.value = v
	l.done = true
	return v, nil
}

// Initialized reports whether Get has succeeded at least once.
func (l *Lazy[T]) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}
