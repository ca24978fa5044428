// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/chronicle/internal/storage"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Storage.Kind != storage.KindSQLite {
		t.Errorf("Storage.Kind = %q, want sqlite", cfg.Storage.Kind)
	}
	if cfg.Storage.Path != "/data/chronicle.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Audit.BatchSize != 100 {
		t.Errorf("Audit.BatchSize = %d, want 100", cfg.Audit.BatchSize)
	}
	if cfg.Audit.FlushInterval != 5*time.Second {
		t.Errorf("Audit.FlushInterval = %v, want 5s", cfg.Audit.FlushInterval)
	}
	if cfg.Server.Port != 8270 {
		t.Errorf("Server.Port = %d, want 8270", cfg.Server.Port)
	}
	if cfg.Retention.MaxAge != 90*24*time.Hour {
		t.Errorf("Retention.MaxAge = %v, want 90 days", cfg.Retention.MaxAge)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if got := s.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad batch size", func(c *Config) { c.Audit.BatchSize = 0 }, "invalid configuration"},
		{"unknown storage", func(c *Config) { c.Storage.Kind = "etcd" }, "unknown kind"},
		{"missing dsn", func(c *Config) { c.Storage.Kind = storage.KindPostgres }, "requires dsn"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging"},
		{"retention without max age", func(c *Config) { c.Retention.MaxAge = 0 }, "max_age"},
		{"retention disabled without max age", func(c *Config) {
			c.Retention.Enabled = false
			c.Retention.MaxAge = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	cfg.Storage.Kind = "etcd"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "server") || !strings.Contains(err.Error(), "unknown kind") {
		t.Errorf("both problems should be reported: %v", err)
	}
}
