package internal

import (
	"sync"
	"time"
)

// Clock stamps modified instants in Unix milliseconds. Version comparison is
// exact equality, so instants handed out by one store must never repeat or
// run backwards even when writes land inside the same millisecond.
type Clock struct {
	mu   sync.Mutex
	last int64
}

// NowMillis returns the current instant, at least one greater than the
// previous result.
func (c *Clock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}
