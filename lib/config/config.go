// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Skirmish processes.
//
// Configuration is loaded from a single YAML file specified by:
//   - SKIRMISH_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is the
// single source of truth; command-line flags may override individual
// values after loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration shared by the relay process and
// the participant client.
type Config struct {
	// Relay configures the rendezvous relay process.
	Relay RelayConfig `yaml:"relay"`

	// Client configures the participant process.
	Client ClientConfig `yaml:"client"`
}

// RelayConfig configures the rendezvous relay process.
type RelayConfig struct {
	// Listen is the address the relay binds, e.g. ":8443".
	Listen string `yaml:"listen"`

	// CertFile and KeyFile are the TLS material paths. When both are
	// empty the relay serves plaintext, which is only appropriate for
	// local development and tests. Provisioning the material itself is
	// external to Skirmish.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// DocumentFile is the static document served for every request
	// path other than the signaling endpoint. Empty means a built-in
	// placeholder page.
	DocumentFile string `yaml:"document_file"`
}

// ClientConfig configures the participant process.
type ClientConfig struct {
	// RelayURL is the websocket URL of the relay signaling endpoint,
	// e.g. "wss://relay.example:8443/signal".
	RelayURL string `yaml:"relay_url"`

	// Name is the participant's display name. Informational only; the
	// relay assigns the actual peer identifier.
	Name string `yaml:"name"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values before a config file is applied.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Listen: ":8443",
		},
		Client: ClientConfig{
			RelayURL: "wss://localhost:8443/signal",
		},
	}
}

// Load loads configuration from the SKIRMISH_CONFIG environment
// variable. If the variable is not set, this fails; use LoadFile with
// an explicit path from a --config flag instead.
func Load() (*Config, error) {
	configPath := os.Getenv("SKIRMISH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SKIRMISH_CONFIG environment variable not set; " +
			"set it to the path of your skirmish.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Values not
// present in the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if (c.Relay.CertFile == "") != (c.Relay.KeyFile == "") {
		return fmt.Errorf("relay cert_file and key_file must be set together")
	}
	if c.Relay.Listen == "" {
		return fmt.Errorf("relay listen address must not be empty")
	}
	return nil
}
