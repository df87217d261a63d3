// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package game

import (
	"encoding/json"
	"fmt"
)

// The peer channels carry exactly two envelope shapes, tagged by the
// short "t" field: inputs flow follower→host on the best-effort
// channel, snapshots flow host→follower on the reliable channel. The
// tag set is closed; unknown tags fail decoding and the message is
// dropped by the receiver.

// EnvelopeTag discriminates game-channel messages.
type EnvelopeTag string

const (
	// TagInput marks a batch of player commands.
	TagInput EnvelopeTag = "in"

	// TagSnapshot marks a full-state snapshot.
	TagSnapshot EnvelopeTag = "snap"
)

// maxEnvelopeSize bounds a single game-channel message. A snapshot of
// a few hundred integer-rounded units is a few kilobytes.
const maxEnvelopeSize = 256 * 1024

// Envelope is the decoded form of a game-channel message. Exactly one
// of the payload groups is meaningful, selected by T.
type Envelope struct {
	T     EnvelopeTag `json:"t"`
	Cmd   []Command   `json:"cmd,omitempty"`
	Tick  int         `json:"tick"`
	Units []UnitDTO   `json:"units,omitempty"`
}

// inputEnvelope is the encode-side shape for TagInput.
type inputEnvelope struct {
	T   EnvelopeTag `json:"t"`
	Cmd []Command   `json:"cmd"`
}

// snapshotEnvelope is the encode-side shape for TagSnapshot.
type snapshotEnvelope struct {
	T     EnvelopeTag `json:"t"`
	Tick  int         `json:"tick"`
	Units []UnitDTO   `json:"units"`
}

// EncodeInput serializes a command batch for the best-effort channel.
func EncodeInput(commands []Command) ([]byte, error) {
	if len(commands) == 0 {
		return nil, fmt.Errorf("input envelope needs at least one command")
	}
	return json.Marshal(inputEnvelope{T: TagInput, Cmd: commands})
}

// EncodeSnapshot serializes a snapshot for the reliable channel. The
// units array is always present, even when empty, so followers can
// distinguish "no units" from a malformed message.
func EncodeSnapshot(snapshot Snapshot) ([]byte, error) {
	units := snapshot.Units
	if units == nil {
		units = []UnitDTO{}
	}
	return json.Marshal(snapshotEnvelope{T: TagSnapshot, Tick: snapshot.Tick, Units: units})
}

// DecodeEnvelope parses and validates a game-channel message. Snapshot
// envelopes additionally pass Snapshot.Validate, closing the
// trust-the-payload gap: the receiver drops anything malformed rather
// than reconciling against it.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) > maxEnvelopeSize {
		return Envelope{}, fmt.Errorf("envelope of %d bytes exceeds limit %d", len(data), maxEnvelopeSize)
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}

	switch envelope.T {
	case TagInput:
		if len(envelope.Cmd) == 0 {
			return Envelope{}, fmt.Errorf("input envelope carries no commands")
		}
	case TagSnapshot:
		if err := (Snapshot{Tick: envelope.Tick, Units: envelope.Units}).Validate(); err != nil {
			return Envelope{}, fmt.Errorf("invalid snapshot: %w", err)
		}
	default:
		return Envelope{}, fmt.Errorf("unknown envelope tag %q", envelope.T)
	}
	return envelope, nil
}
