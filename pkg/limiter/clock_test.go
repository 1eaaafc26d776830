package limiter

import (
	"sync"
	"time"
)

// fakeClock is a hand-cranked Clock for tests.
type fakeClock struct {
	mu sync.Mutex
	ms int64
}

func newFakeClock(startMs int64) *fakeClock {
	return &fakeClock{ms: startMs}
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.ms += d.Milliseconds()
	c.mu.Unlock()
}
