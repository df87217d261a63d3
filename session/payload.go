// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// HandshakeType tags the two payload shapes exchanged through the
// relay during connection establishment.
type HandshakeType string

const (
	HandshakeOffer  HandshakeType = "offer"
	HandshakeAnswer HandshakeType = "answer"
)

// Handshake is the opaque payload the relay forwards between two
// peers: a session description plus the candidates gathered alongside
// it. With full pre-send gathering the candidates are also embedded in
// the SDP; the explicit list lets the receiver apply them even when a
// middlebox rewrites the description.
type Handshake struct {
	Type       HandshakeType             `json:"type"`
	SDP        string                    `json:"sdp"`
	Candidates []webrtc.ICECandidateInit `json:"candidates"`
}

// EncodeHandshake serializes a handshake payload. The candidates array
// is always present, even when empty.
func EncodeHandshake(handshake Handshake) (json.RawMessage, error) {
	if handshake.Type != HandshakeOffer && handshake.Type != HandshakeAnswer {
		return nil, fmt.Errorf("unknown handshake type %q", handshake.Type)
	}
	if handshake.SDP == "" {
		return nil, fmt.Errorf("handshake without session description")
	}
	if handshake.Candidates == nil {
		handshake.Candidates = []webrtc.ICECandidateInit{}
	}
	return json.Marshal(handshake)
}

// DecodeHandshake parses a relayed handshake payload. Peers forward
// through an untrusted relay, so the shape is validated before any of
// it reaches the connection state machine.
func DecodeHandshake(payload json.RawMessage) (Handshake, error) {
	var handshake Handshake
	if err := json.Unmarshal(payload, &handshake); err != nil {
		return Handshake{}, fmt.Errorf("decoding handshake: %w", err)
	}
	if handshake.Type != HandshakeOffer && handshake.Type != HandshakeAnswer {
		return Handshake{}, fmt.Errorf("unknown handshake type %q", handshake.Type)
	}
	if handshake.SDP == "" {
		return Handshake{}, fmt.Errorf("handshake without session description")
	}
	return handshake, nil
}

// sessionDescription converts a handshake to the pion description it
// carries.
func (h Handshake) sessionDescription() webrtc.SessionDescription {
	sdpType := webrtc.SDPTypeOffer
	if h.Type == HandshakeAnswer {
		sdpType = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: h.SDP}
}
