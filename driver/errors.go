// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import "errors"

var (
	// ErrConnectTimeout is returned by Connect when the transport does
	// not report connected within the configured window. Check with
	// errors.Is; callers decide whether to retry.
	ErrConnectTimeout = errors.New("driver: connect timed out")

	// ErrAlreadyConnected is returned by Connect when the driver is
	// not in the disconnected state.
	ErrAlreadyConnected = errors.New("driver: already connecting or connected")

	// ErrNotSubscribed is returned by ReactToMessages before
	// SubscribeToMessages has bound the message stream.
	ErrNotSubscribed = errors.New("driver: not subscribed to the message stream")
)
