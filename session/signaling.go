// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "encoding/json"

// EventKind discriminates signaling events.
type EventKind int

const (
	// EventRoomCreated reports that the relay created a room for us.
	// We are its first member and therefore the host.
	EventRoomCreated EventKind = iota

	// EventRoomJoined reports that the relay admitted us to an
	// existing room. The full membership list follows as an
	// EventRoster.
	EventRoomJoined

	// EventRoster reports a membership change broadcast. Peers is the
	// full current member list in join order.
	EventRoster

	// EventSignal carries a handshake payload relayed from a peer.
	EventSignal

	// EventPeerLeft reports that a peer disconnected from the relay.
	EventPeerLeft

	// EventError carries a relay-reported error code.
	EventError

	// EventClosed reports that the signaling connection is gone. No
	// further events follow.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventRoomCreated:
		return "room-created"
	case EventRoomJoined:
		return "room-joined"
	case EventRoster:
		return "roster"
	case EventSignal:
		return "signal"
	case EventPeerLeft:
		return "peer-left"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one signaling notification. Which fields are meaningful
// depends on Kind.
type Event struct {
	Kind EventKind

	// Room and Self are set on EventRoomCreated and EventRoomJoined.
	Room string
	Self string

	// Peers is set on EventRoster: the full member list in join
	// order, host first.
	Peers []string

	// From and Payload are set on EventSignal.
	From    string
	Payload json.RawMessage

	// Peer is set on EventPeerLeft.
	Peer string

	// Code is set on EventError.
	Code string

	// Err is set on EventClosed when the connection ended abnormally.
	Err error
}

// Signaling is the rendezvous seam between the connection manager and
// whatever carries handshake traffic. Production uses the websocket
// relay client; tests use an in-process hub.
type Signaling interface {
	// Signal relays an opaque payload to one peer in the same room.
	// Delivery is best effort: payloads to vanished peers disappear.
	Signal(to string, payload json.RawMessage) error

	// Events returns the stream of signaling notifications. The
	// channel closes after an EventClosed is delivered.
	Events() <-chan Event

	// Close tears down the signaling connection.
	Close() error
}
