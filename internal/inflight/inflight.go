// Package inflight counts operations that are still running so callers can
// report them or wait for them to finish.
package inflight

import (
	"context"
	"net/http"
	"sync"
)

// Counter is safe for concurrent use. The zero value is ready.
type Counter struct {
	mu   sync.Mutex
	n    int64
	idle chan struct{}
}

// Begin records one more running operation and returns the func that ends it.
// The returned func may be called more than once; only the first call counts.
func (c *Counter) Begin() (end func()) {
	c.add(1)
	var once sync.Once
	return func() { once.Do(func() { c.add(-1) }) }
}

// Track runs fn while it is counted.
func (c *Counter) Track(fn func()) {
	end := c.Begin()
	defer end()
	fn()
}

func (c *Counter) add(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure()
	if delta > 0 && c.n == 0 {
		c.idle = make(chan struct{})
	}
	c.n += delta
	if c.n <= 0 {
		c.n = 0
		select {
		case <-c.idle:
		default:
			close(c.idle)
		}
	}
}

// ensure must be called with mu held.
func (c *Counter) ensure() {
	if c.idle == nil {
		c.idle = make(chan struct{})
		if c.n == 0 {
			close(c.idle)
		}
	}
}

// Load returns the number of running operations.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Wait blocks until nothing is running or ctx is done. It reports whether the
// counter reached zero.
func (c *Counter) Wait(ctx context.Context) bool {
	c.mu.Lock()
	c.ensure()
	ch := c.idle
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Middleware counts each request for its whole duration.
func (c *Counter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		end := c.Begin()
		defer end()
		next.ServeHTTP(w, r)
	})
}
