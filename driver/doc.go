// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

// Package driver connects a bot process to a Voxhall chat server over a
// publish/subscribe RPC transport and orchestrates everything on top of
// it: connection establishment with timeout, authentication, the live
// message stream, and cached remote method calls.
//
// A Driver is an explicit session object. It owns the transport handle,
// the method cache, the active subscription set, and the connection
// lifecycle event bus — all created by New and torn down by Disconnect.
// Nothing in this package is process-global.
//
// Remote calls flow through Dispatch, which routes a method through the
// cache when a bucket is registered for it and the call identity is a
// single string key; everything else goes directly to the transport.
// Cache policy is therefore opt-in per method name and invisible to
// callers.
package driver
