// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/voxhall-im/voxhall-go/transport"
)

// Subscription is a driver-tracked server subscription. Stop is
// idempotent at this layer: the transport sees at most one stop no
// matter how many of Unsubscribe, UnsubscribeAll, and Disconnect run.
type Subscription struct {
	topic string
	inner transport.Subscription

	stopOnce sync.Once
	stopErr  error
}

// Topic returns the topic this subscription was opened on.
func (s *Subscription) Topic() string { return s.topic }

// ID returns the transport-assigned subscription identifier.
func (s *Subscription) ID() string { return s.inner.ID() }

// Ready blocks until the server confirms the subscription.
func (s *Subscription) Ready(ctx context.Context) error {
	return s.inner.Ready(ctx)
}

func (s *Subscription) stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.inner.Stop()
	})
	return s.stopErr
}

// Subscribe opens a subscription to a topic and waits for the server to
// confirm it. The subscription joins the driver's active set as soon as
// the transport returns it, before readiness: a teardown that runs
// while the confirmation is still in flight will reap it.
func (d *Driver) Subscribe(ctx context.Context, topic string, args ...any) (*Subscription, error) {
	inner, err := d.transport.Subscribe(ctx, topic, args...)
	if err != nil {
		return nil, fmt.Errorf("driver: subscribing to %s: %w", topic, err)
	}

	sub := &Subscription{topic: topic, inner: inner}
	d.mu.Lock()
	d.subscriptions = append(d.subscriptions, sub)
	d.mu.Unlock()

	if err := inner.Ready(ctx); err != nil {
		return nil, fmt.Errorf("driver: awaiting readiness of %s: %w", topic, err)
	}
	d.logger.Debug("subscribed", "topic", topic, "id", inner.ID())
	return sub, nil
}

// Unsubscribe stops one subscription and removes it from the driver's
// active set. Stopping a subscription that was already stopped is a
// no-op.
func (d *Driver) Unsubscribe(sub *Subscription) error {
	d.mu.Lock()
	for i, candidate := range d.subscriptions {
		if candidate == sub {
			d.subscriptions = append(d.subscriptions[:i], d.subscriptions[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	if err := sub.stop(); err != nil {
		return fmt.Errorf("driver: stopping subscription to %s: %w", sub.topic, err)
	}
	return nil
}

// UnsubscribeAll stops every active subscription, including ones whose
// readiness was never confirmed. The first stop error is returned after
// all subscriptions have been attempted.
func (d *Driver) UnsubscribeAll() error {
	d.mu.Lock()
	subscriptions := d.subscriptions
	d.subscriptions = nil
	d.mu.Unlock()

	var firstErr error
	for _, sub := range subscriptions {
		if err := sub.stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("driver: stopping subscription to %s: %w", sub.topic, err)
		}
	}
	if firstErr != nil {
		d.logger.Error("unsubscribe sweep saw an error", "error", firstErr)
	}
	return firstErr
}

// SubscribeToMessages opens the room-message stream for every room the
// logged-in user is in and binds the driver's message collection.
// Reactive message handlers registered by ReactToMessages consume from
// this stream.
func (d *Driver) SubscribeToMessages(ctx context.Context) (*Subscription, error) {
	sub, err := d.Subscribe(ctx, MessageStreamTopic, MessageStreamKey, false)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.messages = d.transport.Collection(MessageStreamTopic)
	d.mu.Unlock()
	return sub, nil
}

// ReactToMessages registers a handler for incoming messages. The change
// notification carries only the record identifier, so the handler path
// re-queries the collection by that identifier and parses the payload
// it finds there. Malformed notifications are delivered to the handler
// as errors; the stream keeps flowing.
func (d *Driver) ReactToMessages(handler MessageHandler) error {
	d.mu.Lock()
	messages := d.messages
	d.mu.Unlock()
	if messages == nil {
		return fmt.Errorf("driver: reacting to messages: %w", ErrNotSubscribed)
	}

	query := messages.Query(nil)
	query.OnChange(func(change transport.ChangeEvent) {
		d.dispatchChange(messages, change, handler)
	})
	return nil
}

func (d *Driver) dispatchChange(messages transport.Collection, change transport.ChangeEvent, handler MessageHandler) {
	records := messages.Query(map[string]any{"_id": change.ID}).Records()
	if len(records) == 0 {
		handler(nil, nil, fmt.Errorf("driver: reactive query for id %q returned no results", change.ID))
		return
	}

	record := records[0]
	if len(record.Args) == 0 {
		handler(nil, nil, fmt.Errorf("driver: received message without payload"))
		return
	}

	var message Message
	if err := json.Unmarshal(record.Args[0], &message); err != nil {
		handler(nil, nil, fmt.Errorf("driver: decoding message %s: %w", change.ID, err))
		return
	}

	var meta json.RawMessage
	if len(record.Args) > 1 {
		meta = record.Args[1]
	}
	handler(&message, meta, nil)
}
