package chat

import (
	"fmt"
	"sync"
	"time"
)

// Clock hands out UTC timestamps at millisecond resolution that strictly
// increase across calls.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t

	return t
}

// PairKey returns the order independent key for a two user room. The
// length prefix on the lower id keeps keys distinct for ids that themselves
// contain the separator.
func PairKey(a, b string) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%s_%s", len(lo), lo, hi)
}
