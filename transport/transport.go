// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
)

// Event is a connection lifecycle notification from the transport.
type Event string

const (
	// EventConnected fires when the session is established and
	// authenticated calls may begin.
	EventConnected Event = "connected"

	// EventReconnected fires when the transport re-establishes a
	// session after a drop. The driver forwards it verbatim.
	EventReconnected Event = "reconnected"
)

// Transport is the publish/subscribe RPC client connecting to the chat
// server. The driver orchestrates and caches calls against this
// contract; implementing the wire protocol itself is out of scope for
// this repository. MemoryTransport provides an in-process
// implementation for tests and demos.
type Transport interface {
	// Connect opens the connection. Readiness is signalled by the
	// EventConnected handler, not by Connect returning — the driver
	// races that event against its own timeout.
	Connect(ctx context.Context) error

	// On registers a handler for a lifecycle event. Handlers must be
	// registered before Connect to observe the initial EventConnected.
	On(event Event, handler func())

	// Call invokes a remote method and returns its raw JSON result.
	Call(ctx context.Context, method string, args ...any) (json.RawMessage, error)

	// Subscribe opens a server-side subscription to a topic. The
	// returned Subscription exists immediately; Ready blocks until
	// the server confirms it.
	Subscribe(ctx context.Context, topic string, args ...any) (Subscription, error)

	// Collection returns the reactive collection with the given name.
	Collection(name string) Collection

	// LoginWithPassword authenticates with a username or email and
	// password, returning the raw login result.
	LoginWithPassword(ctx context.Context, usernameOrEmail, password string) (json.RawMessage, error)

	// LoginWithLDAP authenticates against the server's directory
	// service. Options carry implementation-specific LDAP settings.
	LoginWithLDAP(ctx context.Context, username, password string, options map[string]any) (json.RawMessage, error)

	// Logout ends the authenticated session.
	Logout(ctx context.Context) error

	// Close tears the connection down. Idempotent.
	Close() error
}

// Subscription is a live server-side feed the client has opted into.
type Subscription interface {
	// ID is the transport-assigned subscription identifier.
	ID() string

	// Ready blocks until the server confirms the subscription, the
	// subscription is stopped, or ctx is cancelled.
	Ready(ctx context.Context) error

	// Stop cancels the subscription at the transport.
	Stop() error
}

// Collection is a live, server-pushed view of a data set.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Query returns a live query over the collection. A nil or empty
	// filter matches every record; a filter with an "_id" key matches
	// the record with that identifier.
	Query(filter map[string]any) Query
}

// Query is a reactive view over a Collection.
type Query interface {
	// Records returns the records currently matching the query.
	Records() []Record

	// OnChange registers a handler invoked on every change
	// notification. The notification carries only the changed record
	// identifier; callers re-query to confirm the payload.
	OnChange(handler func(ChangeEvent))
}

// Record is one document in a reactive collection. Args is the event
// payload; nil Args marks a change that arrived without one.
type Record struct {
	ID   string
	Args []json.RawMessage
}

// ChangeEvent notifies that the record with ID changed. It carries no
// payload — consumers fetch the record by ID in a second step.
type ChangeEvent struct {
	ID string
}
