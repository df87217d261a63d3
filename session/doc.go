// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Package session establishes direct peer connections between the
// members of a room.
//
// The relay only carries rendezvous traffic: room membership and
// opaque handshake payloads. Everything after the handshake flows over
// two WebRTC data channels per peer pair — one reliable and ordered,
// one unordered with no retransmission — and the Manager reports a
// peer as ready only once both are open.
//
// Signaling is an interface so the connection logic is testable
// without a running relay: RelayClient implements it over a websocket,
// MemoryHub implements it in-process.
package session
