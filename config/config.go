// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads driver configuration for Voxhall bots.
//
// Configuration starts from compiled defaults, is overlaid by an
// optional YAML file (path given explicitly or via the VOXHALL_CONFIG
// environment variable), and is finally overlaid by VOXHALL_* variables
// so deployments can override individual values without a file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth mode selects the login variant the driver uses.
const (
	// AuthPassword logs in with usernameOrEmail and password.
	AuthPassword = "password"
	// AuthLDAP logs in against the server's directory service.
	AuthLDAP = "ldap"
)

// CachePolicy configures one method cache bucket.
type CachePolicy struct {
	// Size is the bucket capacity in entries.
	Size int `yaml:"size"`
	// MaxAge is how long an entry stays usable after insertion.
	MaxAge time.Duration `yaml:"-"`
}

// Config holds everything the driver needs to connect and authenticate.
type Config struct {
	// Host is the chat server address, host:port. A protocol prefix
	// (http://, https://, ws://, wss://) is stripped during
	// normalization; an https or wss prefix turns TLS on unless
	// UseTLS was set explicitly.
	Host string `yaml:"host"`

	// UseTLS selects a TLS connection to the server.
	UseTLS bool `yaml:"use_tls"`

	// ConnectTimeout bounds connection establishment. The connect
	// attempt fails if the transport does not report connected within
	// this window.
	ConnectTimeout time.Duration `yaml:"-"`

	// RoomCache configures the room-lookup method buckets.
	RoomCache CachePolicy `yaml:"room_cache"`

	// DMCache configures the direct-message-room method bucket.
	DMCache CachePolicy `yaml:"dm_cache"`

	// Auth is AuthPassword or AuthLDAP.
	Auth string `yaml:"auth"`

	// Username is the bot account to authenticate as.
	Username string `yaml:"username"`

	// Password is the bot account password.
	Password string `yaml:"password"`

	tlsExplicit bool
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Host:           "localhost:3000",
		ConnectTimeout: 20 * time.Second,
		RoomCache:      CachePolicy{Size: 10, MaxAge: 300 * time.Second},
		DMCache:        CachePolicy{Size: 10, MaxAge: 100 * time.Second},
		Auth:           AuthPassword,
		Username:       "bot",
	}
}

// Load builds the effective configuration: defaults, then the YAML
// file at path (or $VOXHALL_CONFIG when path is empty; no file at all
// when both are empty), then VOXHALL_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXHALL_CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds the effective configuration without a file: defaults
// overlaid by VOXHALL_* environment variables.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileOverlay mirrors Config with optional fields so the YAML file can
// override any subset of values.
type fileOverlay struct {
	Host             *string       `yaml:"host"`
	UseTLS           *bool         `yaml:"use_tls"`
	ConnectTimeoutMS *int          `yaml:"connect_timeout_ms"`
	RoomCache        *cacheOverlay `yaml:"room_cache"`
	DMCache          *cacheOverlay `yaml:"dm_cache"`
	Auth             *string       `yaml:"auth"`
	Username         *string       `yaml:"username"`
	Password         *string       `yaml:"password"`
}

type cacheOverlay struct {
	Size     *int `yaml:"size"`
	MaxAgeMS *int `yaml:"max_age_ms"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if overlay.Host != nil {
		c.Host = *overlay.Host
	}
	if overlay.UseTLS != nil {
		c.UseTLS = *overlay.UseTLS
		c.tlsExplicit = true
	}
	if overlay.ConnectTimeoutMS != nil {
		c.ConnectTimeout = time.Duration(*overlay.ConnectTimeoutMS) * time.Millisecond
	}
	overlay.RoomCache.applyTo(&c.RoomCache)
	overlay.DMCache.applyTo(&c.DMCache)
	if overlay.Auth != nil {
		c.Auth = *overlay.Auth
	}
	if overlay.Username != nil {
		c.Username = *overlay.Username
	}
	if overlay.Password != nil {
		c.Password = *overlay.Password
	}
	return nil
}

func (o *cacheOverlay) applyTo(policy *CachePolicy) {
	if o == nil {
		return
	}
	if o.Size != nil {
		policy.Size = *o.Size
	}
	if o.MaxAgeMS != nil {
		policy.MaxAge = time.Duration(*o.MaxAgeMS) * time.Millisecond
	}
}

func (c *Config) applyEnv() error {
	if host, ok := os.LookupEnv("VOXHALL_HOST"); ok {
		c.Host = host
	}
	if raw, ok := os.LookupEnv("VOXHALL_USE_TLS"); ok {
		useTLS, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("config: VOXHALL_USE_TLS: %w", err)
		}
		c.UseTLS = useTLS
		c.tlsExplicit = true
	}
	if err := envDurationMS("VOXHALL_CONNECT_TIMEOUT_MS", &c.ConnectTimeout); err != nil {
		return err
	}
	if err := envInt("VOXHALL_ROOM_CACHE_SIZE", &c.RoomCache.Size); err != nil {
		return err
	}
	if err := envDurationMS("VOXHALL_ROOM_CACHE_MAX_AGE_MS", &c.RoomCache.MaxAge); err != nil {
		return err
	}
	if err := envInt("VOXHALL_DM_CACHE_SIZE", &c.DMCache.Size); err != nil {
		return err
	}
	if err := envDurationMS("VOXHALL_DM_CACHE_MAX_AGE_MS", &c.DMCache.MaxAge); err != nil {
		return err
	}
	if auth, ok := os.LookupEnv("VOXHALL_AUTH"); ok {
		c.Auth = auth
	}
	if username, ok := os.LookupEnv("VOXHALL_USER"); ok {
		c.Username = username
	}
	if password, ok := os.LookupEnv("VOXHALL_PASSWORD"); ok {
		c.Password = password
	}
	return nil
}

func envInt(name string, target *int) error {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*target = value
	return nil
}

func envDurationMS(name string, target *time.Duration) error {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*target = time.Duration(value) * time.Millisecond
	return nil
}

// normalize strips any protocol prefix from the host and infers TLS
// from an https/wss prefix when TLS was not set explicitly.
func (c *Config) normalize() {
	host := strings.TrimSpace(c.Host)
	secure := strings.HasPrefix(host, "https://") || strings.HasPrefix(host, "wss://")
	for _, prefix := range []string{"https://", "http://", "wss://", "ws://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	c.Host = strings.TrimSuffix(host, "/")

	if secure && !c.tlsExplicit {
		c.UseTLS = true
	}
}

func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host must not be empty")
	}
	switch c.Auth {
	case AuthPassword, AuthLDAP:
	default:
		return fmt.Errorf("config: auth must be %q or %q, got %q", AuthPassword, AuthLDAP, c.Auth)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connect timeout must be positive, got %v", c.ConnectTimeout)
	}
	return nil
}
