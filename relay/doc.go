// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the Skirmish rendezvous relay: the only
// centrally hosted piece of a session. Participants connect to it over
// a websocket, create or join a room, and exchange opaque handshake
// payloads with the other members. Once peers have established their
// direct channels the relay carries no further traffic — it has no
// knowledge of game semantics and never inspects a forwarded payload.
//
// The package is organized around its three responsibilities:
//
//   - protocol.go: closed message-type sets for both wire directions,
//     with strict validating decoders (malformed input is dropped)
//   - room.go: the room registry — ordered membership, an explicit
//     host attribute, and per-room atomicity of membership changes
//     together with their announcement broadcasts
//   - server.go: the HTTP/websocket surface, one read loop per member,
//     and the static document served off the signaling path
//
// Error philosophy follows the protocol contract: a join against an
// unknown room is answered with an explicit "not_found"; everything
// else that cannot be routed or parsed is silently discarded, because
// the sender has no useful recovery beyond what connection loss
// already triggers.
package relay
