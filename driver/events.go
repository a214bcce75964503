// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"fmt"

	"github.com/voxhall-im/voxhall-go/transport"
)

type listener struct {
	topic   string
	handler any
}

func topicFor(event transport.Event) string {
	return "lifecycle:" + string(event)
}

// OnConnectionEvent registers a handler for a lifecycle event. The
// handler runs on the goroutine that observed the event, so it must
// not block. Handlers stay registered until Disconnect.
func (d *Driver) OnConnectionEvent(event transport.Event, handler func()) error {
	topic := topicFor(event)
	if err := d.bus.Subscribe(topic, handler); err != nil {
		return fmt.Errorf("driver: subscribing to %s events: %w", event, err)
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, listener{topic: topic, handler: handler})
	d.mu.Unlock()
	return nil
}

func (d *Driver) teardownListeners() {
	d.mu.Lock()
	listeners := d.listeners
	d.listeners = nil
	d.mu.Unlock()

	for _, l := range listeners {
		if err := d.bus.Unsubscribe(l.topic, l.handler); err != nil {
			d.logger.Warn("unsubscribing lifecycle listener", "topic", l.topic, "error", err)
		}
	}
}
