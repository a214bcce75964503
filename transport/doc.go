// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the contract between the Voxhall driver and
// the publish/subscribe RPC client that carries its traffic: connection
// establishment, lifecycle events, remote method calls, subscriptions,
// and reactive collections.
//
// The wire protocol itself lives outside this repository. The package
// ships one implementation, MemoryTransport, an in-process transport
// used by the driver's tests and the demo bot: method calls are served
// by registered handlers and server pushes are injected manually.
package transport
