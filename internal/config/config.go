// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package config loads bootstrap configuration with Koanf v2, layering
// struct defaults, an optional YAML file, and PUNCHSYNC_-prefixed
// environment variables, then validates the result. Runtime-mutable
// settings (poll interval, cloud API key, API port) live in the store;
// this package only seeds the process.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment overrides, e.g.
// PUNCHSYNC_LOG_LEVEL=debug.
const envPrefix = "PUNCHSYNC_"

// Config is the process bootstrap configuration.
type Config struct {
	// StorePath is the single JSON document file holding all state.
	StorePath string `koanf:"store_path" validate:"required"`

	// APIPort is the HTTP listen port used when the store carries no
	// apiPort setting yet.
	APIPort int `koanf:"api_port" validate:"min=1,max=65535"`

	// PollIntervalMinutes seeds the scheduler period on first run.
	PollIntervalMinutes int `koanf:"poll_interval_minutes" validate:"min=1,max=1440"`

	// ConnectTimeout bounds the TCP dial and CONNECT handshake per device.
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"min=1s,max=2m"`

	// CommandTimeout bounds each command exchange on a device session.
	CommandTimeout time.Duration `koanf:"command_timeout" validate:"min=1s,max=2m"`

	// LogLevel and LogFormat configure the zerolog sink.
	LogLevel  string `koanf:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		StorePath:           "punchsync.json",
		APIPort:             3000,
		PollIntervalMinutes: 5,
		ConnectTimeout:      10 * time.Second,
		CommandTimeout:      5 * time.Second,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path (skipped when path is empty or missing), and the environment.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load config environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
