// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxhall-im/voxhall-go/config"
)

// Login authenticates the session using the credentials and auth mode
// from the driver's configuration. A nil credentials falls back to the
// configured username and password.
func (d *Driver) Login(ctx context.Context, credentials *Credentials) (json.RawMessage, error) {
	username := d.cfg.Username
	password := d.cfg.Password
	if credentials != nil {
		username = credentials.Username
		password = credentials.Password
	}

	var (
		result json.RawMessage
		err    error
	)
	switch d.cfg.Auth {
	case config.AuthLDAP:
		result, err = d.transport.LoginWithLDAP(ctx, username, password, map[string]any{"ldap": true})
	default:
		result, err = d.transport.LoginWithPassword(ctx, username, password)
	}
	if err != nil {
		d.logger.Error("login failed", "username", username, "auth", d.cfg.Auth, "error", err)
		return nil, fmt.Errorf("driver: logging in as %s: %w", username, err)
	}
	d.logger.Info("logged in", "username", username, "auth", d.cfg.Auth)
	return result, nil
}

// Logout ends the authenticated session without closing the transport.
func (d *Driver) Logout(ctx context.Context) error {
	if err := d.transport.Logout(ctx); err != nil {
		return fmt.Errorf("driver: logging out: %w", err)
	}
	return nil
}
