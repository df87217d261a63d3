// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrRoomNotFound is returned by Join for a room id that does not name
// a live room.
var ErrRoomNotFound = errors.New("room not found")

// Token lengths for the opaque identifiers the relay mints. Room ids
// appear in share links, so they stay short; peer ids only travel on
// the wire.
const (
	roomIDLength = 4
	peerIDLength = 6
)

// tokenAlphabet is the character set for minted identifiers.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// MemberConn is the relay's view of a member's connection: something
// it can push server messages to. The websocket server wraps real
// connections; tests substitute in-memory recorders.
type MemberConn interface {
	// Send delivers one server message. Errors are the caller's to
	// swallow — the relay never retries or reports delivery failure.
	Send(message ServerMessage) error
}

// Member is one participant's membership in a room.
type Member struct {
	ID   string
	conn MemberConn
}

// Room holds an ordered member list. The first member ever inserted is
// the host for the lifetime of the room; hostID records that
// explicitly rather than relying on slice position.
//
// A room's mutex covers membership mutation together with the
// broadcast that announces it, so two recipients can never observe
// inconsistent membership lists for the same change.
type Room struct {
	id string

	mu      sync.Mutex
	members []*Member
	hostID  string
	closed  bool
}

// memberIDsLocked returns the membership list in join order. The host
// is index 0 because the host is by definition the first insertion and
// members are never reordered.
func (r *Room) memberIDsLocked() []string {
	ids := make([]string, len(r.members))
	for i, member := range r.members {
		ids[i] = member.ID
	}
	return ids
}

// broadcastLocked sends a message to every member except the one named
// by exceptID (empty means no exception). Send errors are dropped: a
// member whose connection is failing will be removed when its read
// loop notices.
func (r *Room) broadcastLocked(exceptID string, message ServerMessage) {
	for _, member := range r.members {
		if member.ID == exceptID {
			continue
		}
		_ = member.conn.Send(message)
	}
}

// findLocked returns the member with the given id, or nil.
func (r *Room) findLocked(id string) *Member {
	for _, member := range r.members {
		if member.ID == id {
			return member
		}
	}
	return nil
}

// Registry owns all live rooms. Its mutex guards the room table; each
// room guards its own membership. A room with zero members does not
// exist — Leave removes it from the table.
type Registry struct {
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty room registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		rooms:  make(map[string]*Room),
	}
}

// Create allocates a fresh room with the caller as its sole (and thus
// host) member, and confirms with a "created" message. Returns the
// room and peer identifiers.
func (g *Registry) Create(conn MemberConn) (roomID, peerID string) {
	peerID = newToken(peerIDLength)
	member := &Member{ID: peerID, conn: conn}

	g.mu.Lock()
	for {
		roomID = newToken(roomIDLength)
		if _, taken := g.rooms[roomID]; !taken {
			break
		}
	}
	room := &Room{
		id:      roomID,
		members: []*Member{member},
		hostID:  peerID,
	}
	g.rooms[roomID] = room
	g.mu.Unlock()

	g.logger.Info("room created", "room", roomID, "host", peerID)
	_ = conn.Send(ServerMessage{Type: TypeCreated, Room: roomID, Self: peerID})
	return roomID, peerID
}

// Join appends the caller to an existing room. On success the caller
// receives "joined" followed by the full membership list, and every
// other member receives the updated list. A nonexistent room yields
// ErrRoomNotFound and no state change.
func (g *Registry) Join(roomID string, conn MemberConn) (peerID string, err error) {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	g.mu.Unlock()
	if !ok {
		return "", ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	// The room may have emptied out (and left the table) between the
	// table lookup and taking its lock.
	if room.closed {
		return "", ErrRoomNotFound
	}

	peerID = newToken(peerIDLength)
	for room.findLocked(peerID) != nil {
		peerID = newToken(peerIDLength)
	}
	room.members = append(room.members, &Member{ID: peerID, conn: conn})

	peers := room.memberIDsLocked()
	g.logger.Info("member joined", "room", roomID, "peer", peerID, "members", len(peers))

	_ = conn.Send(ServerMessage{Type: TypeJoined, Room: roomID, Self: peerID})
	_ = conn.Send(ServerMessage{Type: TypePeers, Room: roomID, Peers: peers})
	room.broadcastLocked(peerID, ServerMessage{Type: TypePeers, Room: roomID, Peers: peers})
	return peerID, nil
}

// Signal forwards an opaque payload to the member named by to, or to
// the host when to is "host", attaching the sender's peer id. The
// payload is never inspected. A vanished room or destination is a
// no-op.
func (g *Registry) Signal(roomID, fromPeerID, to string, payload json.RawMessage) {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	g.mu.Unlock()
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if to == ToHost {
		to = room.hostID
	}
	destination := room.findLocked(to)
	if destination == nil {
		return
	}
	_ = destination.conn.Send(ServerMessage{
		Type:    TypeForwardedSignal,
		From:    fromPeerID,
		Payload: payload,
	})
}

// Leave removes a member, notifies the remaining members with a "left"
// message, and deletes the room once it has no members. Unknown room
// or member ids are no-ops — the connection may already have been
// cleaned up.
func (g *Registry) Leave(roomID, peerID string) {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	g.mu.Unlock()
	if !ok {
		return
	}

	room.mu.Lock()
	found := false
	for i, member := range room.members {
		if member.ID == peerID {
			room.members = append(room.members[:i], room.members[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		room.mu.Unlock()
		return
	}

	room.broadcastLocked("", ServerMessage{Type: TypeLeft, Peer: peerID})
	empty := len(room.members) == 0
	if empty {
		room.closed = true
	}
	room.mu.Unlock()

	g.logger.Info("member left", "room", roomID, "peer", peerID)

	if empty {
		g.mu.Lock()
		// Re-check identity: the id could have been recycled for a
		// new room after this one emptied.
		if current, ok := g.rooms[roomID]; ok && current == room {
			delete(g.rooms, roomID)
		}
		g.mu.Unlock()
		g.logger.Info("room removed", "room", roomID)
	}
}

// RoomCount reports the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// newToken mints a random identifier of n characters from
// tokenAlphabet.
func newToken(n int) string {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("relay: reading random bytes: %v", err))
	}
	token := make([]byte, n)
	for i, b := range raw {
		token[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(token)
}
