// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryHub is an in-process rendezvous implementing the relay's room
// semantics without a network: join-ordered membership, host at index
// 0, opaque payload forwarding, departure broadcasts. Tests wire
// managers together through a hub instead of a running relay.
type MemoryHub struct {
	mu      sync.Mutex
	room    string
	nextID  int
	members []*MemorySignaling
}

// NewMemoryHub creates a hub with a single implicit room.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{room: "mem1"}
}

// Create registers the first member, the host.
func (h *MemoryHub) Create() *MemorySignaling {
	member := h.admit()
	member.deliver(Event{Kind: EventRoomCreated, Room: h.room, Self: member.id})
	h.broadcastRoster()
	return member
}

// Join registers a later member. As with the relay, the joiner gets
// its confirmation followed by the full roster, and every existing
// member gets the updated roster.
func (h *MemoryHub) Join() *MemorySignaling {
	member := h.admit()
	member.deliver(Event{Kind: EventRoomJoined, Room: h.room, Self: member.id})
	h.broadcastRoster()
	return member
}

func (h *MemoryHub) admit() *MemorySignaling {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	member := &MemorySignaling{
		hub:    h,
		id:     fmt.Sprintf("peer%02d", h.nextID),
		events: make(chan Event, 64),
	}
	h.members = append(h.members, member)
	return member
}

func (h *MemoryHub) broadcastRoster() {
	h.mu.Lock()
	roster := make([]string, len(h.members))
	members := make([]*MemorySignaling, len(h.members))
	for i, member := range h.members {
		roster[i] = member.id
		members[i] = member
	}
	h.mu.Unlock()

	for _, member := range members {
		member.deliver(Event{Kind: EventRoster, Room: h.room, Peers: roster})
	}
}

// route forwards a payload to the named member, or the host for the
// reserved destination. Payloads to vanished members are dropped.
func (h *MemoryHub) route(from, to string, payload json.RawMessage) {
	h.mu.Lock()
	var target *MemorySignaling
	if to == "host" && len(h.members) > 0 {
		target = h.members[0]
	} else {
		for _, member := range h.members {
			if member.id == to {
				target = member
				break
			}
		}
	}
	h.mu.Unlock()

	if target != nil {
		target.deliver(Event{Kind: EventSignal, From: from, Payload: payload})
	}
}

// depart removes a member and notifies the rest.
func (h *MemoryHub) depart(leaving *MemorySignaling) {
	h.mu.Lock()
	remaining := h.members[:0]
	for _, member := range h.members {
		if member != leaving {
			remaining = append(remaining, member)
		}
	}
	h.members = remaining
	listeners := append([]*MemorySignaling(nil), h.members...)
	h.mu.Unlock()

	for _, member := range listeners {
		member.deliver(Event{Kind: EventPeerLeft, Peer: leaving.id})
	}
}

// MemorySignaling is one member's view of a MemoryHub.
type MemorySignaling struct {
	hub *MemoryHub
	id  string

	events chan Event

	mu     sync.Mutex
	closed bool
}

var _ Signaling = (*MemorySignaling)(nil)

// ID returns the hub-assigned peer id.
func (s *MemorySignaling) ID() string { return s.id }

// Signal forwards a payload to one peer through the hub.
func (s *MemorySignaling) Signal(to string, payload json.RawMessage) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("signaling closed")
	}
	s.hub.route(s.id, to, payload)
	return nil
}

// Events returns the event stream.
func (s *MemorySignaling) Events() <-chan Event {
	return s.events
}

// Close leaves the hub, notifying the remaining members, and ends the
// event stream.
func (s *MemorySignaling) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	select {
	case s.events <- Event{Kind: EventClosed}:
	default:
	}
	close(s.events)
	s.mu.Unlock()

	s.hub.depart(s)
	return nil
}

// deliver hands an event to the member, dropping on a full buffer so a
// stalled consumer cannot wedge the hub.
func (s *MemorySignaling) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
	}
}
