// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Channel names one of the two data channels between a pair of peers.
// The values are the data channel labels on the wire.
type Channel string

const (
	// ChannelReliable is ordered with guaranteed delivery.
	ChannelReliable Channel = "reliable"

	// ChannelFast is unordered with no retransmission: a lost message
	// stays lost.
	ChannelFast Channel = "fast"
)

// PeerState tracks connection establishment with one remote peer.
// States advance strictly forward; Closed is terminal and reachable
// from anywhere.
type PeerState int

const (
	StateNew PeerState = iota
	StateOfferCreated
	StateRemoteDescriptionSet
	StateAnswerCreated
	StateChannelsOpening
	StateReady
	StateClosed
)

func (s PeerState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferCreated:
		return "offer-created"
	case StateRemoteDescriptionSet:
		return "remote-description-set"
	case StateAnswerCreated:
		return "answer-created"
	case StateChannelsOpening:
		return "channels-opening"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is the connection state for one remote participant: the
// PeerConnection, both data channels, and the establishment state
// machine. The initiator creates both channels before offering; the
// responder receives them from the remote side. Either way Ready is
// reached only once both channels report open.
type Peer struct {
	id     string
	logger *slog.Logger

	connection *webrtc.PeerConnection

	// onReady fires exactly once, when both channels are open.
	// onMessage fires per inbound data channel message.
	onReady   func(peerID string)
	onMessage func(peerID string, channel Channel, data []byte)

	mu         sync.Mutex
	state      PeerState
	channels   map[Channel]*webrtc.DataChannel
	open       map[Channel]bool
	candidates []webrtc.ICECandidateInit

	ready  chan struct{}
	closed chan struct{}
}

func newPeer(
	id string,
	connection *webrtc.PeerConnection,
	logger *slog.Logger,
	onReady func(peerID string),
	onMessage func(peerID string, channel Channel, data []byte),
) *Peer {
	peer := &Peer{
		id:         id,
		logger:     logger,
		connection: connection,
		onReady:    onReady,
		onMessage:  onMessage,
		state:      StateNew,
		channels:   make(map[Channel]*webrtc.DataChannel, 2),
		open:       make(map[Channel]bool, 2),
		ready:      make(chan struct{}),
		closed:     make(chan struct{}),
	}

	// Accumulate locally gathered candidates for the handshake
	// payload. The final nil candidate marks end of gathering.
	connection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		peer.mu.Lock()
		peer.candidates = append(peer.candidates, init)
		peer.mu.Unlock()
	})

	return peer
}

// ID returns the relay-assigned peer id.
func (p *Peer) ID() string { return p.id }

// State returns the current establishment state.
func (p *Peer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Ready returns a channel closed once both data channels are open.
func (p *Peer) Ready() <-chan struct{} { return p.ready }

// Done returns a channel closed when the peer reaches Closed.
func (p *Peer) Done() <-chan struct{} { return p.closed }

// transition advances the state machine. Establishment states only
// move forward; Closed is reachable from anywhere but never left.
func (p *Peer) transition(to PeerState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transitionLocked(to)
}

func (p *Peer) transitionLocked(to PeerState) error {
	if p.state == StateClosed {
		return fmt.Errorf("peer %s is closed", p.id)
	}
	if to != StateClosed && to <= p.state {
		return fmt.Errorf("peer %s cannot go %s → %s", p.id, p.state, to)
	}
	p.logger.Debug("peer state change", "peer", p.id, "from", p.state.String(), "to", to.String())
	p.state = to
	return nil
}

// advance moves the state machine forward like transition but treats
// an already-reached state as a no-op. Handshake steps that race with
// remote-driven progress (channels can open the moment the answer is
// on the wire) record their milestone with advance so losing the race
// never reads as a failure.
func (p *Peer) advance(to PeerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed || to <= p.state {
		return
	}
	p.logger.Debug("peer state change", "peer", p.id, "from", p.state.String(), "to", to.String())
	p.state = to
}

// createChannels opens the reliable and fast channels on the local
// side. Called by the initiator before producing its offer, so both
// channels are negotiated in the initial handshake.
func (p *Peer) createChannels() error {
	ordered := true
	reliable, err := p.connection.CreateDataChannel(string(ChannelReliable), &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return fmt.Errorf("creating reliable channel: %w", err)
	}
	p.attach(reliable)

	unordered := false
	noRetransmits := uint16(0)
	fast, err := p.connection.CreateDataChannel(string(ChannelFast), &webrtc.DataChannelInit{
		Ordered:        &unordered,
		MaxRetransmits: &noRetransmits,
	})
	if err != nil {
		return fmt.Errorf("creating fast channel: %w", err)
	}
	p.attach(fast)
	return nil
}

// attach registers handlers on a data channel, locally created or
// received from the remote side. Channels with labels outside the two
// known classes are closed immediately.
func (p *Peer) attach(dc *webrtc.DataChannel) {
	channel := Channel(dc.Label())
	if channel != ChannelReliable && channel != ChannelFast {
		p.logger.Warn("closing unexpected data channel", "peer", p.id, "label", dc.Label())
		dc.Close()
		return
	}

	p.mu.Lock()
	p.channels[channel] = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.markOpen(channel)
	})
	dc.OnClose(func() {
		p.logger.Debug("data channel closed", "peer", p.id, "channel", string(channel))
	})
	dc.OnMessage(func(message webrtc.DataChannelMessage) {
		p.onMessage(p.id, channel, message.Data)
	})
}

// markOpen records one channel opening. Ready fires only when both
// classes are open: a single open channel cannot yet carry both
// traffic classes, so the sync engine is not told about the peer.
func (p *Peer) markOpen(channel Channel) {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.open[channel] = true
	bothOpen := p.open[ChannelReliable] && p.open[ChannelFast]
	becameReady := false
	if bothOpen && p.state != StateReady {
		if err := p.transitionLocked(StateReady); err == nil {
			becameReady = true
			close(p.ready)
		}
	}
	p.mu.Unlock()

	if becameReady {
		p.logger.Info("peer ready", "peer", p.id)
		p.onReady(p.id)
	}
}

// Send transmits one message on the named channel. Messages to
// channels that are not open are dropped with an error the caller may
// log and forget: there is no queuing or retry, a newer message
// supersedes whatever was lost.
func (p *Peer) Send(channel Channel, data []byte) error {
	p.mu.Lock()
	dc, known := p.channels[channel]
	open := p.open[channel]
	state := p.state
	p.mu.Unlock()

	if state != StateReady || !known || !open {
		return fmt.Errorf("channel %s to peer %s is not open", channel, p.id)
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("sending on channel %s to peer %s: %w", channel, p.id, err)
	}
	return nil
}

// takeCandidates returns the candidates gathered so far.
func (p *Peer) takeCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

// close tears the peer down. Idempotent; safe from any state. Future
// Sends fail immediately, and in-flight handshake steps observe Done
// and abandon their work.
func (p *Peer) close() {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	close(p.closed)
	p.mu.Unlock()

	if err := p.connection.Close(); err != nil {
		p.logger.Debug("closing peer connection", "peer", p.id, "error", err)
	}
}
