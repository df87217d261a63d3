// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skirmish-game/skirmish/lib/testutil"
)

// managerEvents collects handler callbacks on channels for assertion.
type managerEvents struct {
	ready    chan string
	left     chan string
	messages chan receivedMessage
}

type receivedMessage struct {
	peer    string
	channel Channel
	data    []byte
}

func newManagerEvents() *managerEvents {
	return &managerEvents{
		ready:    make(chan string, 8),
		left:     make(chan string, 8),
		messages: make(chan receivedMessage, 64),
	}
}

func (e *managerEvents) handlers() Handlers {
	return Handlers{
		PeerReady: func(peerID string) { e.ready <- peerID },
		PeerLeft:  func(peerID string) { e.left <- peerID },
		Message: func(peerID string, channel Channel, data []byte) {
			e.messages <- receivedMessage{peerID, channel, append([]byte(nil), data...)}
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// startSessionPair connects two managers through a memory hub and
// waits until both report the other ready. Connection establishment
// runs the real handshake over loopback candidates.
func startSessionPair(t *testing.T) (host, guest *Manager, hostEvents, guestEvents *managerEvents) {
	t.Helper()

	hub := NewMemoryHub()
	hostEvents = newManagerEvents()
	guestEvents = newManagerEvents()

	host = NewManager(hub.Create(), nil, hostEvents.handlers(), discardLogger())
	guest = NewManager(hub.Join(), nil, guestEvents.handlers(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); host.Run(ctx) }()
	go func() { defer wg.Done(); guest.Run(ctx) }()
	t.Cleanup(func() {
		host.Close()
		guest.Close()
		cancel()
		wg.Wait()
	})

	readyAtHost := testutil.RequireReceive(t, hostEvents.ready, 30*time.Second, "host sees guest ready")
	readyAtGuest := testutil.RequireReceive(t, guestEvents.ready, 30*time.Second, "guest sees host ready")
	if readyAtHost != guest.SelfID() {
		t.Fatalf("host ready peer = %s, want %s", readyAtHost, guest.SelfID())
	}
	if readyAtGuest != host.SelfID() {
		t.Fatalf("guest ready peer = %s, want %s", readyAtGuest, host.SelfID())
	}
	return host, guest, hostEvents, guestEvents
}

func TestManager_EstablishesDualChannels(t *testing.T) {
	host, guest, _, _ := startSessionPair(t)

	if !host.IsHost() {
		t.Fatal("room creator should be host")
	}
	if guest.IsHost() {
		t.Fatal("joiner should not be host")
	}
	if guest.HostID() != host.SelfID() {
		t.Fatalf("guest host id = %s, want %s", guest.HostID(), host.SelfID())
	}

	state, ok := guest.PeerState(host.SelfID())
	if !ok || state != StateReady {
		t.Fatalf("guest's connection to host in state %s, want ready", state)
	}
	state, ok = host.PeerState(guest.SelfID())
	if !ok || state != StateReady {
		t.Fatalf("host's connection to guest in state %s, want ready", state)
	}
}

func TestManager_BroadcastAndSendToHost(t *testing.T) {
	host, guest, hostEvents, guestEvents := startSessionPair(t)

	host.Broadcast(ChannelReliable, []byte("snapshot-bytes"))
	fromHost := testutil.RequireReceive(t, guestEvents.messages, 10*time.Second, "guest receives broadcast")
	if fromHost.peer != host.SelfID() || fromHost.channel != ChannelReliable {
		t.Fatalf("unexpected message %+v", fromHost)
	}
	if string(fromHost.data) != "snapshot-bytes" {
		t.Fatalf("payload = %q", fromHost.data)
	}

	guest.SendToHost(ChannelFast, []byte("command-bytes"))
	fromGuest := testutil.RequireReceive(t, hostEvents.messages, 10*time.Second, "host receives command")
	if fromGuest.peer != guest.SelfID() || fromGuest.channel != ChannelFast {
		t.Fatalf("unexpected message %+v", fromGuest)
	}
	if string(fromGuest.data) != "command-bytes" {
		t.Fatalf("payload = %q", fromGuest.data)
	}

	// SendToHost from the host itself goes nowhere.
	host.SendToHost(ChannelFast, []byte("self-addressed"))
	select {
	case message := <-hostEvents.messages:
		t.Fatalf("host received its own send: %+v", message)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestManager_SendsToUnknownPeerAreDropped(t *testing.T) {
	host, _, _, _ := startSessionPair(t)

	// Must not panic or block.
	host.SendTo("peer99", ChannelReliable, []byte("nobody home"))
}

func TestManager_PeerDepartureTearsDownConnection(t *testing.T) {
	host, guest, hostEvents, _ := startSessionPair(t)

	guestID := guest.SelfID()
	guest.Close()

	leftPeer := testutil.RequireReceive(t, hostEvents.left, 30*time.Second, "host notified of departure")
	if leftPeer != guestID {
		t.Fatalf("departed peer = %s, want %s", leftPeer, guestID)
	}
	if _, ok := host.PeerState(guestID); ok {
		t.Fatal("departed peer still has a connection entry")
	}

	// Sends to the departed peer drop silently.
	host.SendTo(guestID, ChannelReliable, []byte("late snapshot"))
	host.Broadcast(ChannelReliable, []byte("next snapshot"))
}

func TestManager_ThreePeerStar(t *testing.T) {
	hub := NewMemoryHub()

	hostEvents := newManagerEvents()
	guestEvents := []*managerEvents{newManagerEvents(), newManagerEvents()}
	host := NewManager(hub.Create(), nil, hostEvents.handlers(), discardLogger())
	guests := []*Manager{
		NewManager(hub.Join(), nil, guestEvents[0].handlers(), discardLogger()),
		NewManager(hub.Join(), nil, guestEvents[1].handlers(), discardLogger()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go host.Run(ctx)
	for _, guest := range guests {
		go guest.Run(ctx)
	}
	t.Cleanup(func() {
		host.Close()
		for _, guest := range guests {
			guest.Close()
		}
	})

	// The host connects to both guests.
	seen := map[string]bool{}
	for len(seen) < 2 {
		peer := testutil.RequireReceive(t, hostEvents.ready, 30*time.Second, "host waiting for guests")
		seen[peer] = true
	}
	for _, guest := range guests {
		if !seen[guest.SelfID()] {
			t.Fatalf("host never connected to %s", guest.SelfID())
		}
	}

	// Each guest connects only to the host: its single ready peer is
	// the host, and it holds no entry for the other guest.
	for i, guest := range guests {
		peer := testutil.RequireReceive(t, guestEvents[i].ready, 30*time.Second,
			"guest %d waiting for host", i)
		if peer != host.SelfID() {
			t.Fatalf("guest %d connected to %s, want host %s", i, peer, host.SelfID())
		}
		select {
		case extra := <-guestEvents[i].ready:
			t.Fatalf("guest %d connected to %s beyond the host", i, extra)
		case <-time.After(500 * time.Millisecond):
		}
		other := guests[1-i]
		if _, ok := guest.PeerState(other.SelfID()); ok {
			t.Fatalf("guest %d holds a direct connection to guest %d", i, 1-i)
		}
		if got := guest.PeerIDs(); len(got) != 1 || got[0] != host.SelfID() {
			t.Fatalf("guest %d peers = %v, want only the host", i, got)
		}
	}

	// A host broadcast reaches both guests.
	host.Broadcast(ChannelReliable, []byte("tick"))
	for i := range guests {
		message := testutil.RequireReceive(t, guestEvents[i].messages, 10*time.Second,
			"guest %d receives broadcast", i)
		if message.peer != host.SelfID() {
			t.Fatalf("guest %d got message from %s", i, message.peer)
		}
	}
}
