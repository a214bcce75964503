// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"github.com/voxhall-im/voxhall-go/config"
	"github.com/voxhall-im/voxhall-go/lib/clock"
	"github.com/voxhall-im/voxhall-go/methodcache"
	"github.com/voxhall-im/voxhall-go/transport"
)

// State is the driver's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Driver.
type Options struct {
	// Transport carries the driver's traffic. Required.
	Transport transport.Transport

	// Config holds connection and cache settings. A zero Host falls
	// back to config.Default().
	Config config.Config

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger

	// Clock is the time source for the connect timeout and cache
	// expiry. If nil, the real clock.
	Clock clock.Clock
}

// Driver is one bot session against a chat server. Create it with New,
// establish the session with Connect, and release everything with
// Disconnect. Methods are safe for concurrent use.
type Driver struct {
	cfg       config.Config
	transport transport.Transport
	cache     *methodcache.Cache
	logger    *slog.Logger
	clock     clock.Clock
	bus       evbus.Bus

	hookOnce  sync.Once
	connected chan struct{}

	mu            sync.Mutex
	state         State
	subscriptions []*Subscription
	listeners     []listener
	messages      transport.Collection
}

// New creates a disconnected Driver.
func New(options Options) (*Driver, error) {
	if options.Transport == nil {
		return nil, fmt.Errorf("driver: Transport is required")
	}

	cfg := options.Config
	if cfg.Host == "" {
		cfg = config.Default()
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Driver{
		cfg:       cfg,
		transport: options.Transport,
		cache:     methodcache.New(clk),
		logger:    logger,
		clock:     clk,
		bus:       evbus.New(),
		connected: make(chan struct{}, 1),
	}, nil
}

// State returns the current connection state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Cache exposes the driver's method cache, for registering additional
// buckets beyond the room and direct-message lookups.
func (d *Driver) Cache() *methodcache.Cache { return d.cache }

// Connect establishes the session. It registers the cache buckets the
// driver depends on, opens the transport, and races the configured
// timeout against the transport's connected event. On success the
// connected event is published on the lifecycle bus; on timeout the
// transport is closed, so a connected event arriving late is dropped
// rather than silently adopted.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateDisconnected {
		d.mu.Unlock()
		return ErrAlreadyConnected
	}
	d.state = StateConnecting
	d.mu.Unlock()

	d.registerCaches()
	d.hookTransport()

	// Drop any connected signal left over from an earlier attempt that
	// timed out; it belongs to a transport that has since been closed.
	select {
	case <-d.connected:
	default:
	}

	if err := d.transport.Connect(ctx); err != nil {
		d.setState(StateDisconnected)
		return fmt.Errorf("driver: opening transport to %s: %w", d.cfg.Host, err)
	}

	timer := d.clock.NewTimer(d.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-d.connected:
		d.setState(StateConnected)
		d.logger.Info("connected", "host", d.cfg.Host, "tls", d.cfg.UseTLS)
		d.bus.Publish(topicFor(transport.EventConnected))
		return nil
	case <-timer.C:
		d.setState(StateDisconnected)
		_ = d.transport.Close()
		d.logger.Error("connect timed out", "host", d.cfg.Host, "timeout", d.cfg.ConnectTimeout)
		return fmt.Errorf("%w after %v", ErrConnectTimeout, d.cfg.ConnectTimeout)
	case <-ctx.Done():
		d.setState(StateDisconnected)
		_ = d.transport.Close()
		return fmt.Errorf("driver: connect cancelled: %w", ctx.Err())
	}
}

// Disconnect removes every active subscription, logs out, closes the
// transport, and unregisters the lifecycle listeners. A subscription is
// never left dangling across a disconnect: the set is drained before
// logout. The first error encountered is returned after teardown
// completes.
func (d *Driver) Disconnect(ctx context.Context) error {
	unsubErr := d.UnsubscribeAll()

	logoutErr := d.transport.Logout(ctx)
	if logoutErr != nil {
		d.logger.Error("logout failed during disconnect", "error", logoutErr)
	}

	closeErr := d.transport.Close()
	d.teardownListeners()
	d.setState(StateDisconnected)

	d.mu.Lock()
	d.messages = nil
	d.mu.Unlock()

	for _, err := range []error{unsubErr, logoutErr, closeErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// hookTransport registers the driver's lifecycle handlers on the
// transport, exactly once for the driver's life. Transports have no
// handler unregistration, so a retried Connect must not stack a second
// set.
func (d *Driver) hookTransport() {
	d.hookOnce.Do(func() {
		// The handler may fire more than once over the session's
		// life; the buffered channel keeps it from blocking after
		// Connect has returned.
		d.transport.On(transport.EventConnected, func() {
			select {
			case d.connected <- struct{}{}:
			default:
			}
		})
		d.transport.On(transport.EventReconnected, func() {
			d.logger.Info("transport reconnected", "host", d.cfg.Host)
			d.bus.Publish(topicFor(transport.EventReconnected))
		})
	})
}

// registerCaches installs the method buckets the driver's room and
// direct-message helpers rely on. Room-name and name-by-room lookups
// share the room policy; direct-message room creation has its own.
func (d *Driver) registerCaches() {
	room := methodcache.Policy{Capacity: d.cfg.RoomCache.Size, MaxAge: d.cfg.RoomCache.MaxAge}
	d.cache.Create(methodGetRoomID, room)
	d.cache.Create(methodGetRoomName, room)
	d.cache.Create(methodCreateDirectMessage, methodcache.Policy{
		Capacity: d.cfg.DMCache.Size,
		MaxAge:   d.cfg.DMCache.MaxAge,
	})
}

func (d *Driver) setState(state State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
}
