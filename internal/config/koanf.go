// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/chronicle/config.yaml",
	"/etc/chronicle/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envVar is the koanf path an environment variable feeds. List values arrive
// comma-separated.
type envVar struct {
	path string
	list bool
}

// envMappings maps allowed environment variables, lowercased, to koanf paths.
// Variables outside this list are ignored.
var envMappings = map[string]envVar{
	// Audit engine
	"audit_enabled":              {path: "audit.enabled"},
	"audit_batch_size":           {path: "audit.batch_size"},
	"audit_flush_interval":       {path: "audit.flush_interval"},
	"audit_max_retries":          {path: "audit.max_retries"},
	"audit_retry_delay":          {path: "audit.retry_delay"},
	"audit_write_timeout":        {path: "audit.write_timeout"},
	"audit_level":                {path: "audit.level"},
	"audit_include_actions":      {path: "audit.filters.include.actions", list: true},
	"audit_include_resources":    {path: "audit.filters.include.resources", list: true},
	"audit_include_actors":       {path: "audit.filters.include.actors", list: true},
	"audit_exclude_actions":      {path: "audit.filters.exclude.actions", list: true},
	"audit_exclude_resources":    {path: "audit.filters.exclude.resources", list: true},
	"audit_exclude_actors":       {path: "audit.filters.exclude.actors", list: true},
	"audit_sanitize_enabled":     {path: "audit.sanitize.enabled"},
	"audit_sanitize_fields":      {path: "audit.sanitize.fields", list: true},
	"audit_sanitize_replacement": {path: "audit.sanitize.replacement"},

	// Storage
	"storage_kind":              {path: "storage.kind"},
	"storage_path":              {path: "storage.path"},
	"storage_dsn":               {path: "storage.dsn"},
	"storage_database":          {path: "storage.database"},
	"storage_collection":        {path: "storage.collection"},
	"storage_max_open_conns":    {path: "storage.max_open_conns"},
	"storage_conn_max_lifetime": {path: "storage.conn_max_lifetime"},
	"storage_memory_capacity":   {path: "storage.memory_capacity"},
	"storage_breaker_enabled":   {path: "storage.circuit_breaker.enabled"},
	"storage_breaker_failures":  {path: "storage.circuit_breaker.max_failures"},
	"storage_breaker_timeout":   {path: "storage.circuit_breaker.timeout"},

	// Server
	"http_enabled":          {path: "server.enabled"},
	"http_host":             {path: "server.host"},
	"http_port":             {path: "server.port"},
	"http_read_timeout":     {path: "server.read_timeout"},
	"http_write_timeout":    {path: "server.write_timeout"},
	"http_shutdown_timeout": {path: "server.shutdown_timeout"},
	"cors_origins":          {path: "server.cors_origins", list: true},
	"rate_limit_requests":   {path: "server.rate_limit_requests"},
	"rate_limit_window":     {path: "server.rate_limit_window"},
	"api_max_page_size":     {path: "server.max_page_size"},
	"api_stats_cache_ttl":   {path: "server.stats_cache_ttl"},

	// Logging
	"log_level":  {path: "logging.level"},
	"log_format": {path: "logging.format"},
	"log_caller": {path: "logging.caller"},

	// Retention
	"retention_enabled":  {path: "retention.enabled"},
	"retention_max_age":  {path: "retention.max_age"},
	"retention_interval": {path: "retention.interval"},
}

// Load reads defaults, then the config file if one exists, then the
// environment, and validates the result.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "". An
// explicit CONFIG_PATH is tried before the defaults.
func findConfigFile() string {
	candidates := DefaultConfigPaths
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		candidates = append([]string{p}, DefaultConfigPaths...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envValue maps an environment variable onto its koanf path. Unknown
// variables return an empty key and are skipped. List values are split on
// commas, dropping blanks.
//
//   - STORAGE_KIND=sqlite -> storage.kind
//   - CORS_ORIGINS=a, b -> server.cors_origins [a b]
func envValue(key, value string) (string, any) {
	v, ok := envMappings[strings.ToLower(key)]
	if !ok {
		return "", nil
	}
	if !v.list {
		return v.path, value
	}

	items := make([]string, 0, strings.Count(value, ",")+1)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return v.path, items
}
