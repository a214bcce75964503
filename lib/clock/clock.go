// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Production code accepts a Clock instead of calling time.Now, time.After,
// or time.NewTimer directly. Real() supplies standard library behavior;
// Fake() supplies a deterministic clock that advances only when Advance
// is called, so timeout and expiry paths can be exercised without real
// waiting.
package clock

import "time"

// Clock abstracts the time operations the driver and cache depend on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. Equivalent to time.After.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a Timer that delivers on its C channel after d.
	// Callers that may abandon the timer early should call Stop.
	NewTimer(d time.Duration) *Timer
}

// Timer is a single-shot timer. C delivers the fire time.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the timer from firing. Returns false if the timer has
// already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
