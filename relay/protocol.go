// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"fmt"
)

// The relay control protocol is JSON messages over a persistent
// websocket. Each direction has a closed set of message types; anything
// outside the set is dropped by the receiver without feedback. The
// relay never inspects signal payloads — they are opaque bytes routed
// between members.

// ClientMessageType enumerates messages a participant may send to the
// relay.
type ClientMessageType string

const (
	// TypeCreate requests a new room. No fields.
	TypeCreate ClientMessageType = "create"

	// TypeJoin requests membership in an existing room. Fields: room.
	TypeJoin ClientMessageType = "join"

	// TypeSignal asks the relay to forward an opaque handshake payload
	// to another member. Fields: room, to (peer id or "host"), payload.
	TypeSignal ClientMessageType = "signal"
)

// ServerMessageType enumerates messages the relay sends to a
// participant.
type ServerMessageType string

const (
	// TypeCreated confirms room creation. Fields: room, self.
	TypeCreated ServerMessageType = "created"

	// TypeJoined confirms a join. Fields: room, self.
	TypeJoined ServerMessageType = "joined"

	// TypePeers carries the full membership list in join order, host
	// first. Fields: room, peers.
	TypePeers ServerMessageType = "peers"

	// TypeForwardedSignal delivers a payload forwarded from another
	// member. Fields: from, payload. The wire type is "signal", shared
	// with the client→relay direction.
	TypeForwardedSignal ServerMessageType = "signal"

	// TypeLeft announces a member's departure. Fields: peer.
	TypeLeft ServerMessageType = "left"

	// TypeError reports a failed request. Fields: code.
	TypeError ServerMessageType = "error"
)

// ErrorCode identifies why a request failed.
type ErrorCode string

// ErrorNotFound is returned for a join against a room id that does not
// name a live room.
const ErrorNotFound ErrorCode = "not_found"

// ToHost is the reserved destination that routes a signal to the
// room's host member.
const ToHost = "host"

// maxMessageSize bounds a single control message. Handshake payloads
// (SDP plus candidates) stay well under this.
const maxMessageSize = 64 * 1024

// ClientMessage is the decoded form of a client→relay message.
type ClientMessage struct {
	Type    ClientMessageType `json:"type"`
	Room    string            `json:"room,omitempty"`
	To      string            `json:"to,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// ServerMessage is a relay→client message. Field presence depends on
// Type; absent fields are omitted on the wire.
type ServerMessage struct {
	Type    ServerMessageType `json:"type"`
	Room    string            `json:"room,omitempty"`
	Self    string            `json:"self,omitempty"`
	Peers   []string          `json:"peers,omitempty"`
	From    string            `json:"from,omitempty"`
	Peer    string            `json:"peer,omitempty"`
	Code    ErrorCode         `json:"code,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// DecodeClientMessage parses and validates a client→relay message.
// The type must be one of the closed set and the fields that type
// requires must be present. Callers drop messages that fail to decode;
// the sender gets no feedback.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	if len(data) > maxMessageSize {
		return ClientMessage{}, fmt.Errorf("message of %d bytes exceeds limit %d", len(data), maxMessageSize)
	}

	var message ClientMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return ClientMessage{}, fmt.Errorf("decoding client message: %w", err)
	}

	switch message.Type {
	case TypeCreate:
		// No required fields.
	case TypeJoin:
		if message.Room == "" {
			return ClientMessage{}, fmt.Errorf("join without room id")
		}
	case TypeSignal:
		if message.Room == "" || message.To == "" {
			return ClientMessage{}, fmt.Errorf("signal without room or destination")
		}
		if len(message.Payload) == 0 {
			return ClientMessage{}, fmt.Errorf("signal without payload")
		}
	default:
		return ClientMessage{}, fmt.Errorf("unknown client message type %q", message.Type)
	}
	return message, nil
}

// DecodeServerMessage parses and validates a relay→client message.
// Used by the rendezvous client; the relay only encodes this form.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	if len(data) > maxMessageSize {
		return ServerMessage{}, fmt.Errorf("message of %d bytes exceeds limit %d", len(data), maxMessageSize)
	}

	var message ServerMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return ServerMessage{}, fmt.Errorf("decoding server message: %w", err)
	}

	switch message.Type {
	case TypeCreated, TypeJoined:
		if message.Room == "" || message.Self == "" {
			return ServerMessage{}, fmt.Errorf("%s without room or self", message.Type)
		}
	case TypePeers:
		if message.Room == "" {
			return ServerMessage{}, fmt.Errorf("peers without room")
		}
	case TypeForwardedSignal:
		if message.From == "" || len(message.Payload) == 0 {
			return ServerMessage{}, fmt.Errorf("signal without sender or payload")
		}
	case TypeLeft:
		if message.Peer == "" {
			return ServerMessage{}, fmt.Errorf("left without peer")
		}
	case TypeError:
		if message.Code == "" {
			return ServerMessage{}, fmt.Errorf("error without code")
		}
	default:
		return ServerMessage{}, fmt.Errorf("unknown server message type %q", message.Type)
	}
	return message, nil
}
