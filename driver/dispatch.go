// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"encoding/json"
)

// CallMethod invokes a remote method directly, bypassing the cache.
func (d *Driver) CallMethod(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	d.logger.Debug("calling method", "method", method)
	result, err := d.transport.Call(ctx, method, args...)
	if err != nil {
		d.logger.Debug("method call failed", "method", method, "error", err)
		return nil, err
	}
	return result, nil
}

// CachedCall invokes a remote method through the cache bucket
// registered for it. Concurrent calls for the same key share one
// outstanding remote invocation; a settled result, success or failure,
// is served from the cache until its bucket's max age passes.
func (d *Driver) CachedCall(ctx context.Context, method, key string) (json.RawMessage, error) {
	return d.cache.Do(ctx, method, key, func(ctx context.Context) (json.RawMessage, error) {
		return d.transport.Call(ctx, method, key)
	})
}

// Dispatch routes a method call. Calls whose method has a registered
// cache bucket and whose arguments are exactly one string go through
// the cache; everything else goes straight to the transport. This is
// the single entry point the room helpers use, so adding a bucket for
// a method transparently starts caching it.
func (d *Driver) Dispatch(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	if key, ok := cacheKey(args); ok && d.cache.Has(method) {
		return d.CachedCall(ctx, method, key)
	}
	return d.CallMethod(ctx, method, args...)
}

// cacheKey reports whether args is a single string, the only argument
// shape the cache indexes by.
func cacheKey(args []any) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	key, ok := args[0].(string)
	return key, ok
}
