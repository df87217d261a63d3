// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Skirmish-relay is the rendezvous server: it allocates rooms, tracks
// membership, and forwards handshake payloads between members. Game
// traffic never touches it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skirmish-game/skirmish/lib/config"
	"github.com/skirmish-game/skirmish/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var listen string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to config file (defaults to $SKIRMISH_CONFIG)")
	flag.StringVar(&listen, "listen", "", "listen address, overrides the config value")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listen != "" {
		cfg.Relay.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var document []byte
	if cfg.Relay.DocumentFile != "" {
		document, err = os.ReadFile(cfg.Relay.DocumentFile)
		if err != nil {
			return fmt.Errorf("reading document file: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting skirmish-relay",
		"listen", cfg.Relay.Listen,
		"tls", cfg.Relay.CertFile != "",
	)

	server := relay.NewServer(relay.NewRegistry(logger), document, logger)
	return server.Serve(ctx, cfg.Relay.Listen, cfg.Relay.CertFile, cfg.Relay.KeyFile)
}
