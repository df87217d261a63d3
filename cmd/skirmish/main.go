// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Skirmish is the game participant: it joins (or creates) a room
// through the relay, connects directly to every other member, and runs
// the simulation — authoritatively when hosting, mirroring the host
// otherwise. Commands are read from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/skirmish-game/skirmish/game"
	"github.com/skirmish-game/skirmish/lib/clock"
	"github.com/skirmish-game/skirmish/lib/config"
	"github.com/skirmish-game/skirmish/session"
)

// defaultICEServers is used when peers are not on the same network.
var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var relayURL string
	var room string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to config file (defaults to $SKIRMISH_CONFIG)")
	flag.StringVar(&relayURL, "relay", "", "relay websocket URL, overrides the config value")
	flag.StringVar(&room, "room", "", "room id to join; empty creates a new room and hosts")
	flag.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
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
	if relayURL != "" {
		cfg.Client.RelayURL = relayURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := session.Dial(ctx, cfg.Client.RelayURL, logger)
	if err != nil {
		return err
	}

	// The room creator is its first member and therefore the host.
	role := game.RoleHost
	if room != "" {
		role = game.RoleFollower
	}

	// Engine construction waits for the relay to assign our peer id;
	// every handler below fires only after that has happened.
	var manager *session.Manager
	var engine *game.Engine
	var engineOnce sync.Once
	getEngine := func() *game.Engine {
		engineOnce.Do(func() {
			engine = game.New(role, manager.SelfID(), manager.HostID(), &networkSender{manager: manager}, clock.Real(), logger)
			if role == game.RoleHost {
				engine.AddPlayer(manager.SelfID())
			}
			go engine.Run(ctx)
		})
		return engine
	}

	handlers := session.Handlers{
		PeerReady: func(peerID string) {
			fmt.Printf("peer %s connected\n", peerID)
			getEngine().AddPlayer(peerID)
		},
		PeerLeft: func(peerID string) {
			fmt.Printf("peer %s left\n", peerID)
			getEngine().RemovePlayer(peerID)
		},
		Message: func(peerID string, channel session.Channel, data []byte) {
			getEngine().HandleMessage(peerID, data)
		},
	}
	manager = session.NewManager(client, defaultICEServers, handlers, logger)

	runErr := make(chan error, 1)
	go func() { runErr <- manager.Run(ctx) }()
	defer manager.Close()

	if room == "" {
		if err := client.CreateRoom(); err != nil {
			return err
		}
	} else {
		if err := client.JoinRoom(room); err != nil {
			return err
		}
	}

	if err := awaitMembership(ctx, manager); err != nil {
		return err
	}
	getEngine()

	fmt.Printf("room %s, playing as %s (%s)\n", manager.Room(), manager.SelfID(), role)
	if role == game.RoleHost {
		fmt.Println("share the room id with other players")
	}

	go func() {
		if err := <-runErr; err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "session ended: %v\n", err)
			stop()
		}
	}()

	return commandLoop(ctx, getEngine())
}

// awaitMembership waits for the relay to confirm our room membership:
// a peer id for ourselves and the first roster naming the host.
func awaitMembership(ctx context.Context, manager *session.Manager) error {
	deadline := time.After(10 * time.Second)
	for manager.SelfID() == "" || manager.HostID() == "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("relay did not confirm room membership within 10s")
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// commandLoop reads player commands from stdin until EOF or shutdown.
func commandLoop(ctx context.Context, engine *game.Engine) error {
	fmt.Println(`commands: "move X Y [id...]", "select [id...]", "units", "quit"`)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := dispatch(engine, line); quit {
				return nil
			}
		}
	}
}

func dispatch(engine *game.Engine, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "units":
		for _, unit := range engine.Units() {
			marker := " "
			if unit.Selected {
				marker = "*"
			}
			fmt.Printf("%s #%d (%.0f,%.0f) -> (%.0f,%.0f) hp=%d owner=%s\n",
				marker, unit.ID, unit.X, unit.Y, unit.TargetX, unit.TargetY, unit.HP, unit.Owner)
		}

	case "select":
		ids, err := parseInts(fields[1:])
		if err != nil {
			fmt.Printf("select: %v\n", err)
			return false
		}
		engine.Select(ids...)

	case "move":
		if len(fields) < 3 {
			fmt.Println("move needs X and Y")
			return false
		}
		coords, err := parseInts(fields[1:3])
		if err != nil {
			fmt.Printf("move: %v\n", err)
			return false
		}
		ids, err := parseInts(fields[3:])
		if err != nil {
			fmt.Printf("move: %v\n", err)
			return false
		}
		if len(ids) == 0 {
			ids = engine.SelectedUnitIDs()
		}
		engine.IssueCommand(game.MoveCommand(coords[0], coords[1], ids...))

	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return false
}

func parseInts(fields []string) ([]int, error) {
	values := make([]int, 0, len(fields))
	for _, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", field)
		}
		values = append(values, value)
	}
	return values, nil
}

// networkSender adapts the connection manager to the engine's sender
// seam. Channel classes map by label.
type networkSender struct {
	manager *session.Manager
}

func (s *networkSender) Broadcast(channel game.ChannelClass, payload []byte) {
	s.manager.Broadcast(session.Channel(channel), payload)
}

func (s *networkSender) SendToHost(channel game.ChannelClass, payload []byte) {
	s.manager.SendToHost(session.Channel(channel), payload)
}
