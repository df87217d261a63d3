// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Package game implements the host-authoritative state sync engine.
//
// One peer in a session is the host and owns the canonical simulation:
// units, players, and the tick counter. Every other peer is a follower
// that forwards its commands to the host and replaces its local unit
// set wholesale whenever a snapshot arrives. Commands are intent
// ("move these units toward this point"), not state; only snapshots
// carry state, so a lost or reordered command can never fork the
// simulation.
//
// The wire format is two JSON envelope shapes on two channel classes:
// compact command arrays on the lossy fast channel, full unit
// snapshots on the reliable channel. See envelope.go and command.go.
package game
