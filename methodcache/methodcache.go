// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

// Package methodcache caches the results of asynchronous remote method
// calls, keyed by (method, key). Each registered method owns an
// independent bucket with its own capacity and age policy.
//
// The cache stores in-flight calls, not only settled values: the first
// caller for a (method, key) pair inserts a pending entry and runs the
// remote invocation; concurrent callers block on the same entry and
// observe the identical settlement. This guarantees at most one
// outstanding remote call per pair, collapsing duplicate concurrent
// requests into one.
//
// Failed calls are cached too, until they expire or are overwritten.
// Repeat callers within that window receive the same error rather than
// retrying, which keeps a failing method from being stampeded. The one
// exception is a failure caused by the invoking caller's own context
// ending: that is not a remote rejection, so the entry is dropped and
// the next caller invokes afresh.
//
// Keys are single strings. Methods whose call identity spans multiple
// arguments are not cacheable by this mechanism.
package methodcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/voxhall-im/voxhall-go/lib/clock"
)

// Policy configures a method's bucket.
type Policy struct {
	// Capacity is the maximum number of entries the bucket holds.
	// Inserting beyond it evicts the least-recently-used entry.
	// Values below 1 are treated as 1.
	Capacity int

	// MaxAge is how long an entry stays usable after insertion.
	// Expiry is lazy: an over-age entry is treated as absent on
	// lookup and replaced by the next Do.
	MaxAge time.Duration
}

// InvokeFunc performs the underlying remote call for a cache miss.
type InvokeFunc func(ctx context.Context) (json.RawMessage, error)

// Call is a cache entry: a remote invocation that is either still in
// flight or settled with a value or an error.
type Call struct {
	done       chan struct{}
	value      json.RawMessage
	err        error
	insertedAt time.Time
}

// Done is closed once the call has settled.
func (call *Call) Done() <-chan struct{} { return call.done }

// Await blocks until the call settles or ctx is cancelled.
func (call *Call) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-call.done:
		return call.value, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// bucket holds one method's entries in recency order.
type bucket struct {
	mu      sync.Mutex
	policy  Policy
	entries *simplelru.LRU[string, *Call]
}

// Cache is a registry of per-method buckets. The zero value is not
// usable; create instances with New.
type Cache struct {
	clock clock.Clock

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// New creates an empty Cache. A nil clk uses the real clock.
func New(clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real()
	}
	return &Cache{
		clock:   clk,
		buckets: make(map[string]*bucket),
	}
}

// Create registers a bucket for method. Re-registering an existing
// method replaces its policy and clears its entries.
func (c *Cache) Create(method string, policy Policy) {
	if policy.Capacity < 1 {
		policy.Capacity = 1
	}
	// simplelru only errors on non-positive size, which is ruled out above.
	entries, _ := simplelru.NewLRU[string, *Call](policy.Capacity, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[method] = &bucket{policy: policy, entries: entries}
}

// Has reports whether a bucket is registered for method.
func (c *Cache) Has(method string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.buckets[method]
	return ok
}

// Get returns the entry for (method, key) if present and not expired.
// A hit counts as a use for LRU ordering. The returned Call may still
// be in flight; use Await or Done to observe its settlement.
func (c *Cache) Get(method, key string) (*Call, bool) {
	b := c.bucket(method)
	if b == nil {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries.Get(key)
	if !ok || b.expired(entry, c.clock.Now()) {
		return nil, false
	}
	return entry, true
}

// Put inserts or overwrites a settled entry with the current timestamp.
// It is a no-op when no bucket is registered for method.
func (c *Cache) Put(method, key string, value json.RawMessage) {
	b := c.bucket(method)
	if b == nil {
		return
	}

	entry := &Call{
		done:       make(chan struct{}),
		value:      value,
		insertedAt: c.clock.Now(),
	}
	close(entry.done)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries.Add(key, entry)
}

// Do returns the cached result for (method, key), invoking the remote
// call on a miss. The pending call is inserted before it settles, so
// concurrent Do calls for the same pair share one invocation — every
// caller receives the identical value or error. The invocation runs in
// the first caller's goroutine; waiters are bounded by their own ctx.
// A failure caused by that caller's context ending is reported but not
// cached.
func (c *Cache) Do(ctx context.Context, method, key string, invoke InvokeFunc) (json.RawMessage, error) {
	b := c.bucket(method)
	if b == nil {
		return nil, fmt.Errorf("methodcache: no bucket registered for method %q", method)
	}

	b.mu.Lock()
	now := c.clock.Now()
	if entry, ok := b.entries.Get(key); ok && !b.expired(entry, now) {
		b.mu.Unlock()
		return entry.Await(ctx)
	}

	// Miss, expired, or first call: insert the pending entry before the
	// remote call starts so concurrent callers find it.
	entry := &Call{
		done:       make(chan struct{}),
		insertedAt: now,
	}
	b.entries.Add(key, entry)
	b.mu.Unlock()

	value, err := invoke(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// The invocation failed because this caller's context ended,
		// not because the remote rejected the call. Drop the pending
		// entry so the next caller invokes afresh instead of
		// inheriting another caller's cancellation for MaxAge.
		b.mu.Lock()
		if current, ok := b.entries.Peek(key); ok && current == entry {
			b.entries.Remove(key)
		}
		b.mu.Unlock()
	}
	entry.value, entry.err = value, err
	close(entry.done)
	return value, err
}

// Len returns the number of entries currently held for method,
// including expired ones that have not yet been replaced.
func (c *Cache) Len(method string) int {
	b := c.bucket(method)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Len()
}

func (c *Cache) bucket(method string) *bucket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buckets[method]
}

// expired reports whether entry is older than the bucket's MaxAge at
// now. Age is measured from insertion, not from last use. Caller holds
// the bucket mutex.
func (b *bucket) expired(entry *Call, now time.Time) bool {
	return now.Sub(entry.insertedAt) > b.policy.MaxAge
}
