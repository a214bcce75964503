// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ Transport    = (*MemoryTransport)(nil)
	_ Subscription = (*MemorySubscription)(nil)
	_ Collection   = (*MemoryCollection)(nil)
)

// MethodHandler services one remote method on a MemoryTransport.
type MethodHandler func(args ...any) (json.RawMessage, error)

// MemoryTransport is an in-process Transport for tests and demos.
// Method calls are served by registered handlers, lifecycle events are
// emitted manually with EmitEvent, and collection changes are injected
// through the MemoryCollection accessors. Every operation is appended
// to a journal so tests can assert ordering (e.g. that unsubscribe
// precedes logout during disconnect).
type MemoryTransport struct {
	mu            sync.Mutex
	handlers      map[string]MethodHandler
	events        map[Event][]func()
	collections   map[string]*MemoryCollection
	subscriptions []*MemorySubscription
	journal       []string
	holdReady     bool
	closed        bool
	loginErr      error
	logoutErr     error
}

// NewMemoryTransport creates an empty in-process transport. It emits no
// lifecycle events on its own — call EmitEvent(EventConnected) to
// simulate the server accepting the connection.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		handlers:    make(map[string]MethodHandler),
		events:      make(map[Event][]func()),
		collections: make(map[string]*MemoryCollection),
	}
}

// HandleMethod registers the handler serving method.
func (t *MemoryTransport) HandleMethod(method string, handler MethodHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[method] = handler
}

// FailLogin makes both login variants return err.
func (t *MemoryTransport) FailLogin(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loginErr = err
}

// FailLogout makes Logout return err.
func (t *MemoryTransport) FailLogout(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logoutErr = err
}

// HoldSubscriptionsReady keeps subsequent subscriptions pending until
// ReleaseSubscriptions is called.
func (t *MemoryTransport) HoldSubscriptionsReady() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holdReady = true
}

// ReleaseSubscriptions marks every pending subscription ready.
func (t *MemoryTransport) ReleaseSubscriptions() {
	t.mu.Lock()
	subscriptions := append([]*MemorySubscription(nil), t.subscriptions...)
	t.holdReady = false
	t.mu.Unlock()

	for _, subscription := range subscriptions {
		subscription.markReady()
	}
}

// EmitEvent invokes every handler registered for event, synchronously
// in registration order.
func (t *MemoryTransport) EmitEvent(event Event) {
	t.mu.Lock()
	handlers := append([]func(){}, t.events[event]...)
	t.mu.Unlock()

	for _, handler := range handlers {
		handler()
	}
}

// Journal returns a copy of the operation journal.
func (t *MemoryTransport) Journal() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.journal...)
}

// Subscriptions returns every subscription ever issued, in creation order.
func (t *MemoryTransport) Subscriptions() []*MemorySubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*MemorySubscription(nil), t.subscriptions...)
}

// HandlerCount returns how many handlers are registered for event.
func (t *MemoryTransport) HandlerCount(event Event) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events[event])
}

// Closed reports whether Close has been called.
func (t *MemoryTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *MemoryTransport) record(operation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.journal = append(t.journal, operation)
}

// Connect opens the transport. Readiness is signalled separately via
// EmitEvent(EventConnected).
func (t *MemoryTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("memory: transport is closed")
	}
	t.journal = append(t.journal, "connect")
	return nil
}

func (t *MemoryTransport) On(event Event, handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[event] = append(t.events[event], handler)
}

func (t *MemoryTransport) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	t.mu.Lock()
	handler, ok := t.handlers[method]
	t.journal = append(t.journal, "call:"+method)
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("memory: no handler for method %q", method)
	}
	// The handler runs outside the lock: it may block (tests gate it
	// to exercise in-flight deduplication) or call back into the
	// transport.
	return handler(args...)
}

func (t *MemoryTransport) Subscribe(ctx context.Context, topic string, args ...any) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("memory: transport is closed")
	}

	subscription := &MemorySubscription{
		id:        uuid.NewString(),
		topic:     topic,
		transport: t,
		ready:     make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if !t.holdReady {
		close(subscription.ready)
		subscription.readyClosed = true
	}
	t.subscriptions = append(t.subscriptions, subscription)
	t.journal = append(t.journal, "subscribe:"+topic)
	return subscription, nil
}

func (t *MemoryTransport) Collection(name string) Collection {
	t.mu.Lock()
	defer t.mu.Unlock()
	collection, ok := t.collections[name]
	if !ok {
		collection = &MemoryCollection{
			name:    name,
			records: make(map[string]Record),
		}
		t.collections[name] = collection
	}
	return collection
}

// MessageCollection returns the named collection with its concrete
// type, for tests that inject records and change events.
func (t *MemoryTransport) MessageCollection(name string) *MemoryCollection {
	return t.Collection(name).(*MemoryCollection)
}

func (t *MemoryTransport) LoginWithPassword(ctx context.Context, usernameOrEmail, password string) (json.RawMessage, error) {
	t.mu.Lock()
	t.journal = append(t.journal, "login-password:"+usernameOrEmail)
	loginErr := t.loginErr
	t.mu.Unlock()

	if loginErr != nil {
		return nil, loginErr
	}
	return json.RawMessage(`{"id":"` + usernameOrEmail + `"}`), nil
}

func (t *MemoryTransport) LoginWithLDAP(ctx context.Context, username, password string, options map[string]any) (json.RawMessage, error) {
	t.mu.Lock()
	t.journal = append(t.journal, "login-ldap:"+username)
	loginErr := t.loginErr
	t.mu.Unlock()

	if loginErr != nil {
		return nil, loginErr
	}
	return json.RawMessage(`{"id":"` + username + `"}`), nil
}

func (t *MemoryTransport) Logout(ctx context.Context) error {
	t.mu.Lock()
	t.journal = append(t.journal, "logout")
	logoutErr := t.logoutErr
	t.mu.Unlock()
	return logoutErr
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.journal = append(t.journal, "close")
	}
	return nil
}

// MemorySubscription is the Subscription issued by a MemoryTransport.
type MemorySubscription struct {
	id        string
	topic     string
	transport *MemoryTransport

	mu          sync.Mutex
	ready       chan struct{}
	readyClosed bool
	stopped     chan struct{}
	stopCount   int
}

func (s *MemorySubscription) ID() string { return s.id }

// Topic returns the subscribed topic, for test assertions.
func (s *MemorySubscription) Topic() string { return s.topic }

// StopCount returns how many times Stop has been invoked.
func (s *MemorySubscription) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCount
}

func (s *MemorySubscription) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyClosed {
		close(s.ready)
		s.readyClosed = true
	}
}

func (s *MemorySubscription) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.stopped:
		return fmt.Errorf("memory: subscription %s stopped before ready", s.topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemorySubscription) Stop() error {
	s.mu.Lock()
	s.stopCount++
	first := s.stopCount == 1
	if first {
		close(s.stopped)
	}
	s.mu.Unlock()

	if first {
		s.transport.record("stop:" + s.topic)
	}
	return nil
}

// MemoryCollection is the reactive collection backing a MemoryTransport.
// Tests drive it directly: SetRecord installs the server-side document,
// EmitChange delivers the change notification to every live query.
type MemoryCollection struct {
	mu      sync.Mutex
	name    string
	records map[string]Record
	queries []*memoryQuery
}

func (c *MemoryCollection) Name() string { return c.name }

func (c *MemoryCollection) Query(filter map[string]any) Query {
	query := &memoryQuery{collection: c, filter: filter}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	return query
}

// SetRecord installs or replaces the record in the collection.
func (c *MemoryCollection) SetRecord(record Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[record.ID] = record
}

// DeleteRecord removes the record with the given ID.
func (c *MemoryCollection) DeleteRecord(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, id)
}

// EmitChange notifies every live query that the record with ID changed.
// Handlers run synchronously, outside the collection lock, so they may
// re-query the collection.
func (c *MemoryCollection) EmitChange(id string) {
	c.mu.Lock()
	var handlers []func(ChangeEvent)
	for _, query := range c.queries {
		handlers = append(handlers, query.handlers()...)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(ChangeEvent{ID: id})
	}
}

type memoryQuery struct {
	collection *MemoryCollection
	filter     map[string]any

	mu       sync.Mutex
	onChange []func(ChangeEvent)
}

func (q *memoryQuery) handlers() []func(ChangeEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]func(ChangeEvent){}, q.onChange...)
}

func (q *memoryQuery) OnChange(handler func(ChangeEvent)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = append(q.onChange, handler)
}

func (q *memoryQuery) Records() []Record {
	q.collection.mu.Lock()
	defer q.collection.mu.Unlock()

	wantID, filtered := "", false
	if q.filter != nil {
		if id, ok := q.filter["_id"].(string); ok {
			wantID, filtered = id, true
		}
	}

	var records []Record
	for _, record := range q.collection.records {
		if filtered && record.ID != wantID {
			continue
		}
		records = append(records, record)
	}
	return records
}
