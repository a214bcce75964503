// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Host != "localhost:3000" {
		t.Errorf("Host = %q, want localhost:3000", cfg.Host)
	}
	if cfg.UseTLS {
		t.Error("UseTLS defaulted to true")
	}
	if cfg.ConnectTimeout != 20*time.Second {
		t.Errorf("ConnectTimeout = %v, want 20s", cfg.ConnectTimeout)
	}
	if cfg.RoomCache.Size != 10 || cfg.RoomCache.MaxAge != 300*time.Second {
		t.Errorf("RoomCache = %+v, want 10 entries / 300s", cfg.RoomCache)
	}
	if cfg.DMCache.Size != 10 || cfg.DMCache.MaxAge != 100*time.Second {
		t.Errorf("DMCache = %+v, want 10 entries / 100s", cfg.DMCache)
	}
	if cfg.Auth != AuthPassword {
		t.Errorf("Auth = %q, want password", cfg.Auth)
	}
	if cfg.Username != "bot" {
		t.Errorf("Username = %q, want bot", cfg.Username)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXHALL_HOST", "chat.example.com:443")
	t.Setenv("VOXHALL_USE_TLS", "true")
	t.Setenv("VOXHALL_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("VOXHALL_ROOM_CACHE_SIZE", "25")
	t.Setenv("VOXHALL_ROOM_CACHE_MAX_AGE_MS", "60000")
	t.Setenv("VOXHALL_DM_CACHE_SIZE", "5")
	t.Setenv("VOXHALL_DM_CACHE_MAX_AGE_MS", "15000")
	t.Setenv("VOXHALL_AUTH", "ldap")
	t.Setenv("VOXHALL_USER", "helper-bot")
	t.Setenv("VOXHALL_PASSWORD", "hunter2")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Host != "chat.example.com:443" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if !cfg.UseTLS {
		t.Error("UseTLS override ignored")
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", cfg.ConnectTimeout)
	}
	if cfg.RoomCache.Size != 25 || cfg.RoomCache.MaxAge != time.Minute {
		t.Errorf("RoomCache = %+v", cfg.RoomCache)
	}
	if cfg.DMCache.Size != 5 || cfg.DMCache.MaxAge != 15*time.Second {
		t.Errorf("DMCache = %+v", cfg.DMCache)
	}
	if cfg.Auth != AuthLDAP {
		t.Errorf("Auth = %q, want ldap", cfg.Auth)
	}
	if cfg.Username != "helper-bot" || cfg.Password != "hunter2" {
		t.Errorf("credentials = %q/%q", cfg.Username, cfg.Password)
	}
}

func TestHostNormalization(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		wantHost string
		wantTLS  bool
	}{
		{"bare host", "localhost:3000", "localhost:3000", false},
		{"http prefix stripped", "http://chat.example.com", "chat.example.com", false},
		{"https prefix implies TLS", "https://chat.example.com", "chat.example.com", true},
		{"wss prefix implies TLS", "wss://chat.example.com/", "chat.example.com", true},
		{"ws prefix stripped", "ws://chat.example.com", "chat.example.com", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("VOXHALL_HOST", test.host)
			cfg, err := FromEnv()
			if err != nil {
				t.Fatalf("FromEnv failed: %v", err)
			}
			if cfg.Host != test.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Host, test.wantHost)
			}
			if cfg.UseTLS != test.wantTLS {
				t.Errorf("UseTLS = %v, want %v", cfg.UseTLS, test.wantTLS)
			}
		})
	}
}

func TestExplicitTLSBeatsInference(t *testing.T) {
	t.Setenv("VOXHALL_HOST", "https://chat.example.com")
	t.Setenv("VOXHALL_USE_TLS", "false")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.UseTLS {
		t.Error("explicit VOXHALL_USE_TLS=false overridden by https inference")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxhall.yaml")
	content := `
host: wss://chat.internal:8443
connect_timeout_ms: 3000
room_cache:
  size: 50
  max_age_ms: 120000
auth: ldap
username: directory-bot
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != "chat.internal:8443" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if !cfg.UseTLS {
		t.Error("wss host did not imply TLS")
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.RoomCache.Size != 50 || cfg.RoomCache.MaxAge != 2*time.Minute {
		t.Errorf("RoomCache = %+v", cfg.RoomCache)
	}
	// Untouched sections keep their defaults.
	if cfg.DMCache.Size != 10 {
		t.Errorf("DMCache.Size = %d, want default 10", cfg.DMCache.Size)
	}
	if cfg.Auth != AuthLDAP || cfg.Username != "directory-bot" {
		t.Errorf("auth = %q/%q", cfg.Auth, cfg.Username)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxhall.yaml")
	if err := os.WriteFile(path, []byte("host: file.example.com\n"), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("VOXHALL_CONFIG", path)
	t.Setenv("VOXHALL_HOST", "env.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != "env.example.com" {
		t.Errorf("Host = %q, want the environment override", cfg.Host)
	}
}

func TestValidation(t *testing.T) {
	t.Run("bad auth mode", func(t *testing.T) {
		t.Setenv("VOXHALL_AUTH", "kerberos")
		if _, err := FromEnv(); err == nil {
			t.Fatal("unknown auth mode accepted")
		}
	})

	t.Run("bad boolean", func(t *testing.T) {
		t.Setenv("VOXHALL_USE_TLS", "maybe")
		if _, err := FromEnv(); err == nil {
			t.Fatal("malformed VOXHALL_USE_TLS accepted")
		}
	})

	t.Run("bad integer", func(t *testing.T) {
		t.Setenv("VOXHALL_ROOM_CACHE_SIZE", "lots")
		if _, err := FromEnv(); err == nil {
			t.Fatal("malformed VOXHALL_ROOM_CACHE_SIZE accepted")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("missing config file accepted")
		}
	})
}
