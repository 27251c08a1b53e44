package view

import (
	"golang.org/x/sync/singleflight"
)

// Coalescer collapses identical concurrent fetches into one backend call.
// Sessions watching the same data share one in-flight request instead of
// issuing duplicates.
type Coalescer struct {
	group singleflight.Group
}

// NewCoalescer create a Coalescer
func NewCoalescer() *Coalescer {
	return &Coalescer{}
}

// coalesce run fn once per key among concurrent callers; every caller gets
// the shared result. A nil coalescer degrades to a plain call.
func coalesce[T any](c *Coalescer, key string, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
