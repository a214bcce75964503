// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called; timers registered through After or
// NewTimer fire synchronously inside Advance once the clock passes
// their deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{current: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	done     bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C
}

func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		waiter.ch <- c.current
		waiter.done = true
	} else {
		c.waiters = append(c.waiters, waiter)
		c.changed.Broadcast()
	}

	return &Timer{
		C: waiter.ch,
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.done {
				return false
			}
			waiter.done = true
			c.removeDone()
			return true
		},
	}
}

// Advance moves the clock forward by d and fires every pending timer
// whose deadline has been reached, in registration order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
	for _, waiter := range c.waiters {
		if waiter.done || waiter.deadline.After(c.current) {
			continue
		}
		waiter.ch <- c.current
		waiter.done = true
	}
	c.removeDone()
	c.changed.Broadcast()
}

// WaitForTimers blocks until at least n timers are pending. Call this
// before Advance when the timer is registered by another goroutine, to
// eliminate the registration/advance race.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.changed.Wait()
	}
}

// removeDone compacts the waiter list. Caller holds mu.
func (c *FakeClock) removeDone() {
	active := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.done {
			active = append(active, waiter)
		}
	}
	c.waiters = active
}
