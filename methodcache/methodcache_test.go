// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package methodcache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxhall-im/voxhall-go/lib/clock"
)

const testMethod = "getRoomIdByNameOrId"

// newTestCache creates a Cache on a fake clock starting at a fixed time.
func newTestCache(t *testing.T) (*Cache, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(fake), fake
}

// staticInvoke returns an InvokeFunc that counts invocations and
// resolves to value.
func staticInvoke(count *atomic.Int32, value string) InvokeFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		count.Add(1)
		return json.RawMessage(`"` + value + `"`), nil
	}
}

func TestCreateAndHas(t *testing.T) {
	cache, _ := newTestCache(t)

	if cache.Has(testMethod) {
		t.Fatal("Has returned true before Create")
	}
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: time.Minute})
	if !cache.Has(testMethod) {
		t.Fatal("Has returned false after Create")
	}
}

func TestCreateReplacesBucket(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: time.Minute})
	cache.Put(testMethod, "general", json.RawMessage(`"r1"`))

	// Re-registering clears entries and installs the new policy.
	cache.Create(testMethod, Policy{Capacity: 2, MaxAge: time.Minute})
	if got := cache.Len(testMethod); got != 0 {
		t.Errorf("Len after re-Create = %d, want 0", got)
	}
	if _, ok := cache.Get(testMethod, "general"); ok {
		t.Error("entry survived re-Create")
	}
}

func TestCapacityEviction(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 3, MaxAge: time.Hour})

	for _, key := range []string{"a", "b", "c"} {
		cache.Put(testMethod, key, json.RawMessage(`"room-`+key+`"`))
	}

	// Touch "a" so "b" becomes the least-recently-used entry.
	if _, ok := cache.Get(testMethod, "a"); !ok {
		t.Fatal("expected hit for a")
	}

	cache.Put(testMethod, "d", json.RawMessage(`"room-d"`))

	if got := cache.Len(testMethod); got != 3 {
		t.Errorf("Len = %d, want 3", got)
	}
	if _, ok := cache.Get(testMethod, "b"); ok {
		t.Error("least-recently-used entry b was not evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := cache.Get(testMethod, key); !ok {
			t.Errorf("entry %s missing after eviction", key)
		}
	}
}

func TestLazyExpiry(t *testing.T) {
	cache, fake := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: 5 * time.Minute})
	cache.Put(testMethod, "general", json.RawMessage(`"r1"`))

	fake.Advance(5 * time.Minute)
	if _, ok := cache.Get(testMethod, "general"); !ok {
		t.Fatal("entry expired at exactly MaxAge; it should still be fresh")
	}

	fake.Advance(time.Millisecond)
	if _, ok := cache.Get(testMethod, "general"); ok {
		t.Fatal("over-age entry returned as a hit")
	}
	// The entry object is still structurally present until replaced.
	if got := cache.Len(testMethod); got != 1 {
		t.Errorf("Len = %d, want 1 (lazy expiry does not sweep)", got)
	}

	// Do treats the over-age entry as a miss and re-invokes.
	var invocations atomic.Int32
	value, err := cache.Do(context.Background(), testMethod, "general", staticInvoke(&invocations, "fresh"))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if string(value) != `"fresh"` {
		t.Errorf("Do returned %s, want fresh value", value)
	}
	if invocations.Load() != 1 {
		t.Errorf("invocations = %d, want 1", invocations.Load())
	}
}

func TestDoDeduplicatesConcurrentCalls(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: time.Minute})

	var invocations atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	invoke := func(ctx context.Context) (json.RawMessage, error) {
		invocations.Add(1)
		close(started)
		<-release
		return json.RawMessage(`"general-id"`), nil
	}

	results := make(chan string, 5)
	failures := make(chan error, 5)
	var wg sync.WaitGroup

	// First caller owns the invocation.
	wg.Add(1)
	go func() {
		defer wg.Done()
		value, err := cache.Do(context.Background(), testMethod, "general", invoke)
		if err != nil {
			failures <- err
			return
		}
		results <- string(value)
	}()
	<-started

	// Concurrent callers must join the pending call, not re-invoke.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := cache.Do(context.Background(), testMethod, "general", func(ctx context.Context) (json.RawMessage, error) {
				t.Error("duplicate invocation for an in-flight key")
				return nil, nil
			})
			if err != nil {
				failures <- err
				return
			}
			results <- string(value)
		}()
	}

	close(release)
	wg.Wait()
	close(results)
	close(failures)

	for err := range failures {
		t.Fatalf("Do failed: %v", err)
	}
	count := 0
	for value := range results {
		count++
		if value != `"general-id"` {
			t.Errorf("caller observed %s, want shared settlement", value)
		}
	}
	if count != 5 {
		t.Errorf("settled callers = %d, want 5", count)
	}
	if invocations.Load() != 1 {
		t.Errorf("invocations = %d, want exactly 1", invocations.Load())
	}
}

func TestDoCachesFailure(t *testing.T) {
	cache, fake := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: time.Minute})

	callErr := errors.New("room not found")
	var invocations atomic.Int32
	failing := func(ctx context.Context) (json.RawMessage, error) {
		invocations.Add(1)
		return nil, callErr
	}

	if _, err := cache.Do(context.Background(), testMethod, "missing", failing); !errors.Is(err, callErr) {
		t.Fatalf("Do error = %v, want %v", err, callErr)
	}

	// Within the window the failure is reused, not retried.
	if _, err := cache.Do(context.Background(), testMethod, "missing", failing); !errors.Is(err, callErr) {
		t.Fatalf("second Do error = %v, want cached %v", err, callErr)
	}
	if invocations.Load() != 1 {
		t.Fatalf("invocations = %d, want 1 (failure must be cached)", invocations.Load())
	}

	// After expiry the failure is replaced by a fresh invocation.
	fake.Advance(time.Minute + time.Millisecond)
	if _, err := cache.Do(context.Background(), testMethod, "missing", failing); !errors.Is(err, callErr) {
		t.Fatalf("post-expiry Do error = %v, want %v", err, callErr)
	}
	if invocations.Load() != 2 {
		t.Errorf("invocations = %d, want 2 after expiry", invocations.Load())
	}
}

func TestDoDoesNotCacheCallerCancellation(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: time.Minute})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	var invocations atomic.Int32
	invoke := func(ctx context.Context) (json.RawMessage, error) {
		invocations.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return json.RawMessage(`"room-1"`), nil
	}

	if _, err := cache.Do(cancelled, testMethod, "general", invoke); !errors.Is(err, context.Canceled) {
		t.Fatalf("Do with cancelled ctx = %v, want context.Canceled", err)
	}

	// One caller's cancellation is not a remote rejection: the entry
	// must not persist, and a healthy caller invokes afresh.
	if _, ok := cache.Get(testMethod, "general"); ok {
		t.Fatal("cancellation was cached")
	}
	value, err := cache.Do(context.Background(), testMethod, "general", invoke)
	if err != nil {
		t.Fatalf("Do after cancellation: %v", err)
	}
	if string(value) != `"room-1"` {
		t.Fatalf("Do value = %s, want \"room-1\"", value)
	}
	if invocations.Load() != 2 {
		t.Fatalf("invocations = %d, want 2 (cancelled attempt not reused)", invocations.Load())
	}
}

func TestDoIndependentKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: time.Minute})

	var invocations atomic.Int32
	for _, key := range []string{"general", "random"} {
		if _, err := cache.Do(context.Background(), testMethod, key, staticInvoke(&invocations, key)); err != nil {
			t.Fatalf("Do(%s) failed: %v", key, err)
		}
	}
	if invocations.Load() != 2 {
		t.Errorf("invocations = %d, want one per key", invocations.Load())
	}
}

func TestDoWithoutBucket(t *testing.T) {
	cache, _ := newTestCache(t)
	var invocations atomic.Int32
	if _, err := cache.Do(context.Background(), "unregistered", "key", staticInvoke(&invocations, "x")); err == nil {
		t.Fatal("Do without a bucket succeeded")
	}
	if invocations.Load() != 0 {
		t.Error("invoke ran despite missing bucket")
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.Create(testMethod, Policy{Capacity: 10, MaxAge: time.Minute})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = cache.Do(context.Background(), testMethod, "slow", func(ctx context.Context) (json.RawMessage, error) {
			close(started)
			<-release
			return json.RawMessage(`"late"`), nil
		})
	}()
	<-started
	defer close(release)

	entry, ok := cache.Get(testMethod, "slow")
	if !ok {
		t.Fatal("pending entry not visible via Get")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := entry.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Await error = %v, want context.Canceled", err)
	}
}
