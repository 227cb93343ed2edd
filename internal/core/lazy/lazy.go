// Package lazy provides a value that is computed on first use and then cached.
package lazy

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Value computes its content on the first Get. Concurrent first callers share
// a single computation. A failed computation is not cached.
type Value[T any] struct {
	init  func() (T, error)
	group singleflight.Group

	mu     sync.RWMutex
	loaded bool
	val    T
}

// New returns a Value that runs init at most once successfully.
func New[T any](init func() (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

// Get returns the cached value, computing it if needed.
func (v *Value[T]) Get() (T, error) {
	if val, ok := v.cached(); ok {
		return val, nil
	}

	res, err, _ := v.group.Do("init", func() (any, error) {
		// Another flight may have finished between cached() and Do.
		if val, ok := v.cached(); ok {
			return val, nil
		}

		val, err := v.init()
		if err != nil {
			return nil, err
		}

		v.mu.Lock()
		v.val = val
		v.loaded = true
		v.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	// A nil interface T comes back from singleflight as an untyped nil.
	val, _ := res.(T)
	return val, nil
}

// Loaded reports whether the value has been computed.
func (v *Value[T]) Loaded() bool {
	_, ok := v.cached()
	return ok
}

func (v *Value[T]) cached() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val, v.loaded
}
