// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skirmish-game/skirmish/relay"
)

// clientWriteWait bounds a single websocket write to the relay.
const clientWriteWait = 10 * time.Second

// eventBuffer sizes the event channel. Signaling traffic is a handful
// of messages per session; the buffer only absorbs bursts while the
// consumer is mid-handshake.
const eventBuffer = 32

// RelayClient is the websocket rendezvous client. It speaks the relay
// control protocol, translating relay messages into Events for the
// connection manager and requests back into wire messages.
//
// Send methods are safe for concurrent use. The read loop runs on its
// own goroutine from Dial until the connection drops.
type RelayClient struct {
	logger *slog.Logger
	events chan Event

	writeMu sync.Mutex
	conn    *websocket.Conn

	closeOnce sync.Once

	// room and self are set by the read loop when the relay confirms
	// create or join, and read by Signal afterwards. The relay
	// guarantees the confirmation arrives before any signal traffic.
	stateMu sync.Mutex
	room    string
	self    string
}

var _ Signaling = (*RelayClient)(nil)

// Dial connects to the relay at url (a ws:// or wss:// endpoint) and
// starts the read loop. The caller then issues CreateRoom or JoinRoom
// and consumes Events.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*RelayClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", url, err)
	}

	client := &RelayClient{
		logger: logger,
		events: make(chan Event, eventBuffer),
		conn:   conn,
	}
	go client.readLoop()
	return client, nil
}

// CreateRoom asks the relay for a fresh room. The confirmation arrives
// as an EventRoomCreated.
func (c *RelayClient) CreateRoom() error {
	return c.send(relay.ClientMessage{Type: relay.TypeCreate})
}

// JoinRoom asks the relay for membership in an existing room. Success
// arrives as EventRoomJoined; an unknown id as an EventError with code
// not_found.
func (c *RelayClient) JoinRoom(room string) error {
	return c.send(relay.ClientMessage{Type: relay.TypeJoin, Room: room})
}

// Signal relays a handshake payload to one peer. The reserved
// destination "host" routes to the room's host.
func (c *RelayClient) Signal(to string, payload json.RawMessage) error {
	c.stateMu.Lock()
	room := c.room
	c.stateMu.Unlock()
	if room == "" {
		return fmt.Errorf("not in a room")
	}
	return c.send(relay.ClientMessage{
		Type:    relay.TypeSignal,
		Room:    room,
		To:      to,
		Payload: payload,
	})
}

// Events returns the signaling event stream.
func (c *RelayClient) Events() <-chan Event {
	return c.events
}

// Close tears down the websocket. The read loop delivers a final
// EventClosed and closes the event channel.
func (c *RelayClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Self returns the relay-assigned peer id, empty before the relay has
// confirmed a create or join.
func (c *RelayClient) Self() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.self
}

// Room returns the current room id, empty before confirmation.
func (c *RelayClient) Room() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.room
}

func (c *RelayClient) send(message relay.ClientMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", message.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("sending %s message: %w", message.Type, err)
	}
	return nil
}

// readLoop translates relay messages into events until the connection
// drops, then emits EventClosed and closes the event channel.
func (c *RelayClient) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			closeEvent := Event{Kind: EventClosed}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				closeEvent.Err = err
			}
			c.events <- closeEvent
			return
		}

		message, err := relay.DecodeServerMessage(data)
		if err != nil {
			c.logger.Debug("dropping relay message", "error", err)
			continue
		}

		event, ok := c.translate(message)
		if !ok {
			continue
		}
		c.events <- event
	}
}

func (c *RelayClient) translate(message relay.ServerMessage) (Event, bool) {
	switch message.Type {
	case relay.TypeCreated:
		c.stateMu.Lock()
		c.room = message.Room
		c.self = message.Self
		c.stateMu.Unlock()
		return Event{Kind: EventRoomCreated, Room: message.Room, Self: message.Self}, true

	case relay.TypeJoined:
		c.stateMu.Lock()
		c.room = message.Room
		c.self = message.Self
		c.stateMu.Unlock()
		return Event{Kind: EventRoomJoined, Room: message.Room, Self: message.Self}, true

	case relay.TypePeers:
		return Event{Kind: EventRoster, Room: message.Room, Peers: message.Peers}, true

	case relay.TypeForwardedSignal:
		return Event{Kind: EventSignal, From: message.From, Payload: message.Payload}, true

	case relay.TypeLeft:
		return Event{Kind: EventPeerLeft, Peer: message.Peer}, true

	case relay.TypeError:
		return Event{Kind: EventError, Code: string(message.Code)}, true

	default:
		return Event{}, false
	}
}
