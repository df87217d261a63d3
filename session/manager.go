// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// iceGatherTimeout is the maximum time to wait for candidate gathering
// to complete before giving up on a handshake. All candidates are
// gathered before the description is relayed (vanilla ICE), so each
// handshake direction costs exactly one relay round-trip.
const iceGatherTimeout = 15 * time.Second

// Handlers are the manager's upward notifications. Nil fields are
// no-ops. Callbacks fire on manager goroutines and must not block.
type Handlers struct {
	// PeerReady fires once per peer, when both data channels to it
	// are open.
	PeerReady func(peerID string)

	// PeerLeft fires when a peer's connection entry is removed, for
	// any reason: relay left notification, transport failure, or
	// manager shutdown.
	PeerLeft func(peerID string)

	// Message fires per inbound data channel message.
	Message func(peerID string, channel Channel, data []byte)
}

// Manager orchestrates direct connections to every other member of a
// room. It consumes signaling events, runs the offer/answer handshake
// per peer, and exposes fire-and-forget sends once peers are ready.
//
// Establishment flows are independent per peer: a slow handshake with
// one peer never delays another's. The session is a star around the
// host: the host offers to every member the roster lists, and every
// other member connects only to the host — guests never hold direct
// channels to each other, all their traffic goes through the host.
type Manager struct {
	signaling  Signaling
	iceServers []webrtc.ICEServer
	handlers   Handlers
	logger     *slog.Logger

	mu     sync.Mutex
	peers  map[string]*Peer
	selfID string
	room   string
	hostID string

	// initiated marks peers the host has started a handshake toward,
	// so back-to-back rosters do not spawn duplicate flows while the
	// first one is still creating its connection entry.
	initiated map[string]bool

	closed    chan struct{}
	closeOnce sync.Once
}

// NewManager creates a connection manager over the given signaling
// channel. iceServers may be empty when peers share a network.
func NewManager(signaling Signaling, iceServers []webrtc.ICEServer, handlers Handlers, logger *slog.Logger) *Manager {
	if handlers.PeerReady == nil {
		handlers.PeerReady = func(string) {}
	}
	if handlers.PeerLeft == nil {
		handlers.PeerLeft = func(string) {}
	}
	if handlers.Message == nil {
		handlers.Message = func(string, Channel, []byte) {}
	}
	return &Manager{
		signaling:  signaling,
		iceServers: iceServers,
		handlers:   handlers,
		logger:     logger,
		peers:      make(map[string]*Peer),
		initiated:  make(map[string]bool),
		closed:     make(chan struct{}),
	}
}

// Run consumes signaling events until the signaling channel closes or
// ctx is cancelled. Handshakes run on their own goroutines; Run only
// dispatches.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return ctx.Err()
		case event, ok := <-m.signaling.Events():
			if !ok {
				m.Close()
				return nil
			}
			if err := m.handleEvent(ctx, event); err != nil {
				m.Close()
				return err
			}
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, event Event) error {
	switch event.Kind {
	case EventRoomCreated:
		m.mu.Lock()
		m.selfID = event.Self
		m.room = event.Room
		m.hostID = event.Self
		m.mu.Unlock()
		m.logger.Info("room created", "room", event.Room, "self", event.Self)

	case EventRoomJoined:
		m.mu.Lock()
		m.selfID = event.Self
		m.room = event.Room
		m.mu.Unlock()
		m.logger.Info("room joined", "room", event.Room, "self", event.Self)

	case EventRoster:
		m.handleRoster(ctx, event.Peers)

	case EventSignal:
		// Handshake processing waits on candidate gathering; keep it
		// off the dispatch loop so peers establish independently.
		go m.handleSignal(ctx, event.From, event.Payload)

	case EventPeerLeft:
		m.logger.Info("peer left room", "peer", event.Peer)
		m.removePeer(event.Peer)

	case EventError:
		m.logger.Warn("relay reported error", "code", event.Code)

	case EventClosed:
		m.closeAllPeers()
		select {
		case <-m.closed:
			// Local shutdown tore the signaling down; not a failure.
			return nil
		default:
		}
		if event.Err != nil {
			return fmt.Errorf("signaling connection lost: %w", event.Err)
		}
		return nil
	}
	return nil
}

// handleRoster reacts to a membership broadcast. Only the host opens
// connections: it offers to every listed member it has no flow toward
// yet. Every other member does nothing here and waits for the host's
// offer — guests never connect to each other.
func (m *Manager) handleRoster(ctx context.Context, roster []string) {
	m.mu.Lock()
	if len(roster) > 0 {
		m.hostID = roster[0]
	}
	self := m.selfID
	var targets []string
	if self != "" && self == m.hostID {
		for _, peerID := range roster {
			if peerID == self || m.initiated[peerID] {
				continue
			}
			if _, exists := m.peers[peerID]; exists {
				continue
			}
			m.initiated[peerID] = true
			targets = append(targets, peerID)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("roster update", "peers", roster)
	for _, peerID := range targets {
		go func(id string) {
			if err := m.initiate(ctx, id); err != nil {
				m.logger.Error("connecting to peer failed", "peer", id, "error", err)
				m.removePeer(id)
			}
		}(peerID)
	}
}

// initiate runs the offering side of the handshake with one peer:
// create the connection and both channels, gather, and relay the
// offer. The answer arrives later as a signal event.
func (m *Manager) initiate(ctx context.Context, peerID string) error {
	peer, err := m.addPeer(peerID)
	if err != nil {
		return err
	}

	if err := peer.createChannels(); err != nil {
		return err
	}

	offer, err := peer.connection.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating offer for %s: %w", peerID, err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peer.connection)
	if err := peer.connection.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description for %s: %w", peerID, err)
	}
	if err := m.awaitGathering(ctx, peer, gatherComplete); err != nil {
		return err
	}

	payload, err := EncodeHandshake(Handshake{
		Type:       HandshakeOffer,
		SDP:        peer.connection.LocalDescription().SDP,
		Candidates: peer.takeCandidates(),
	})
	if err != nil {
		return fmt.Errorf("encoding offer for %s: %w", peerID, err)
	}
	if err := m.signaling.Signal(peerID, payload); err != nil {
		return fmt.Errorf("relaying offer to %s: %w", peerID, err)
	}
	peer.advance(StateOfferCreated)

	m.logger.Info("offer sent", "peer", peerID)
	return nil
}

// handleSignal dispatches one relayed handshake payload.
func (m *Manager) handleSignal(ctx context.Context, from string, payload []byte) {
	handshake, err := DecodeHandshake(payload)
	if err != nil {
		m.logger.Debug("dropping handshake payload", "from", from, "error", err)
		return
	}

	switch handshake.Type {
	case HandshakeOffer:
		if err := m.respond(ctx, from, handshake); err != nil {
			m.logger.Error("answering offer failed", "peer", from, "error", err)
			m.removePeer(from)
		}
	case HandshakeAnswer:
		if err := m.acceptAnswer(from, handshake); err != nil {
			m.logger.Error("applying answer failed", "peer", from, "error", err)
			m.removePeer(from)
		}
	}
}

// respond runs the answering side of the handshake: apply the offer,
// gather, and relay the answer back. The remote side created both
// channels, so they arrive through OnDataChannel.
func (m *Manager) respond(ctx context.Context, peerID string, offer Handshake) error {
	m.mu.Lock()
	self := m.selfID
	hostID := m.hostID
	_, exists := m.peers[peerID]
	m.mu.Unlock()

	// Only the host initiates, so a legitimate offer always comes
	// from the host. Anything else would grow the star into a mesh.
	if self != "" && self == hostID {
		m.logger.Debug("ignoring offer sent to the host", "peer", peerID)
		return nil
	}
	if hostID != "" && peerID != hostID {
		m.logger.Debug("ignoring offer from non-host peer", "peer", peerID)
		return nil
	}
	if exists {
		m.logger.Debug("ignoring duplicate offer", "peer", peerID)
		return nil
	}

	peer, err := m.addPeer(peerID)
	if err != nil {
		return err
	}
	peer.connection.OnDataChannel(peer.attach)

	if err := peer.connection.SetRemoteDescription(offer.sessionDescription()); err != nil {
		return fmt.Errorf("applying offer from %s: %w", peerID, err)
	}
	for _, candidate := range offer.Candidates {
		if err := peer.connection.AddICECandidate(candidate); err != nil {
			m.logger.Debug("adding remote candidate failed", "peer", peerID, "error", err)
		}
	}
	if err := peer.transition(StateRemoteDescriptionSet); err != nil {
		return err
	}

	answer, err := peer.connection.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating answer for %s: %w", peerID, err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peer.connection)
	if err := peer.connection.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("setting local description for %s: %w", peerID, err)
	}
	if err := m.awaitGathering(ctx, peer, gatherComplete); err != nil {
		return err
	}
	if err := peer.transition(StateAnswerCreated); err != nil {
		return err
	}

	payload, err := EncodeHandshake(Handshake{
		Type:       HandshakeAnswer,
		SDP:        peer.connection.LocalDescription().SDP,
		Candidates: peer.takeCandidates(),
	})
	if err != nil {
		return fmt.Errorf("encoding answer for %s: %w", peerID, err)
	}
	if err := m.signaling.Signal(peerID, payload); err != nil {
		return fmt.Errorf("relaying answer to %s: %w", peerID, err)
	}
	peer.advance(StateChannelsOpening)

	m.logger.Info("answer sent", "peer", peerID)
	return nil
}

// acceptAnswer completes the offering side: apply the remote answer
// and wait for the channels to open. The channels may open (and the
// peer reach Ready) the instant the remote description lands, so the
// bookkeeping here advances rather than strictly transitions.
func (m *Manager) acceptAnswer(peerID string, answer Handshake) error {
	peer := m.lookupPeer(peerID)
	if peer == nil {
		return fmt.Errorf("answer from %s without a pending offer", peerID)
	}

	if err := peer.connection.SetRemoteDescription(answer.sessionDescription()); err != nil {
		return fmt.Errorf("applying answer from %s: %w", peerID, err)
	}
	for _, candidate := range answer.Candidates {
		if err := peer.connection.AddICECandidate(candidate); err != nil {
			m.logger.Debug("adding remote candidate failed", "peer", peerID, "error", err)
		}
	}
	peer.advance(StateRemoteDescriptionSet)
	peer.advance(StateChannelsOpening)
	return nil
}

// awaitGathering blocks until candidate gathering completes or the
// handshake is abandoned.
func (m *Manager) awaitGathering(ctx context.Context, peer *Peer, gatherComplete <-chan struct{}) error {
	select {
	case <-gatherComplete:
		return nil
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("candidate gathering for %s timed out after %s", peer.ID(), iceGatherTimeout)
	case <-peer.Done():
		return fmt.Errorf("peer %s closed during gathering", peer.ID())
	case <-m.closed:
		return fmt.Errorf("manager closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addPeer creates the connection entry for one remote peer. At most
// one entry per peer id exists at a time.
func (m *Manager) addPeer(peerID string) (*Peer, error) {
	connection, err := m.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("creating peer connection for %s: %w", peerID, err)
	}

	peer := newPeer(peerID, connection, m.logger, m.handlers.PeerReady, m.handlers.Message)

	m.mu.Lock()
	if _, exists := m.peers[peerID]; exists {
		m.mu.Unlock()
		connection.Close()
		return nil, fmt.Errorf("connection to %s already in progress", peerID)
	}
	m.peers[peerID] = peer
	m.mu.Unlock()

	// Transport failure from any state tears the peer down.
	connection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		m.logger.Debug("ice state change", "peer", peerID, "state", state.String())
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			m.removePeer(peerID)
		}
	})

	return peer, nil
}

// lookupPeer returns the live entry for peerID, or nil.
func (m *Manager) lookupPeer(peerID string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[peerID]
}

// removePeer tears down and removes one peer entry, then reports the
// departure. Safe to call for unknown peers and safe to call twice.
func (m *Manager) removePeer(peerID string) {
	m.mu.Lock()
	peer, ok := m.peers[peerID]
	if ok {
		delete(m.peers, peerID)
	}
	// Clearing the mark lets the host retry the handshake if a later
	// roster still lists the peer.
	delete(m.initiated, peerID)
	m.mu.Unlock()

	if !ok {
		return
	}
	peer.close()
	m.handlers.PeerLeft(peerID)
}

func (m *Manager) closeAllPeers() {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for id, peer := range m.peers {
		peers = append(peers, peer)
		delete(m.peers, id)
	}
	m.mu.Unlock()

	for _, peer := range peers {
		peer.close()
	}
}

// Close shuts the manager down: every peer connection is closed and
// the signaling connection is released.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
	m.closeAllPeers()
	m.signaling.Close()
}

// SendTo transmits on the named channel to one peer. Messages to
// unknown peers or unopened channels are dropped: stale traffic is
// superseded by the next snapshot or command, so there is nothing
// worth queuing.
func (m *Manager) SendTo(peerID string, channel Channel, data []byte) {
	peer := m.lookupPeer(peerID)
	if peer == nil {
		m.logger.Debug("dropping send to unknown peer", "peer", peerID)
		return
	}
	if err := peer.Send(channel, data); err != nil {
		m.logger.Debug("dropping send", "peer", peerID, "error", err)
	}
}

// Broadcast transmits on the named channel to every ready peer.
func (m *Manager) Broadcast(channel Channel, data []byte) {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, peer := range m.peers {
		peers = append(peers, peer)
	}
	m.mu.Unlock()

	for _, peer := range peers {
		if err := peer.Send(channel, data); err != nil {
			m.logger.Debug("dropping broadcast", "peer", peer.ID(), "error", err)
		}
	}
}

// SendToHost transmits to the room's host. A no-op when we are the
// host ourselves.
func (m *Manager) SendToHost(channel Channel, data []byte) {
	m.mu.Lock()
	hostID := m.hostID
	self := m.selfID
	m.mu.Unlock()

	if hostID == "" || hostID == self {
		return
	}
	m.SendTo(hostID, channel, data)
}

// SelfID returns the relay-assigned local peer id.
func (m *Manager) SelfID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfID
}

// Room returns the current room id.
func (m *Manager) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// HostID returns the id of the room's host, membership index 0.
func (m *Manager) HostID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostID
}

// IsHost reports whether the local participant is the room's host.
func (m *Manager) IsHost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfID != "" && m.selfID == m.hostID
}

// PeerIDs returns the ids of current connection entries.
func (m *Manager) PeerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	return ids
}

// PeerState returns the establishment state for one peer.
func (m *Manager) PeerState(peerID string) (PeerState, bool) {
	peer := m.lookupPeer(peerID)
	if peer == nil {
		return StateClosed, false
	}
	return peer.State(), true
}

// newPeerConnection creates a pion PeerConnection with loopback
// candidates enabled, so same-machine sessions and tests connect
// without external ICE servers.
func (m *Manager) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
}
