// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skirmish-game/skirmish/lib/testutil"
	"github.com/skirmish-game/skirmish/relay"
)

// startRelay runs a relay over httptest and returns the websocket URL
// of its signaling endpoint.
func startRelay(t *testing.T) string {
	t.Helper()
	server := relay.NewServer(relay.NewRegistry(discardLogger()), nil, discardLogger())
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/signal"
}

func dialRelay(t *testing.T, url string) *RelayClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := Dial(ctx, url, discardLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRelayClient_CreateAndJoin(t *testing.T) {
	url := startRelay(t)

	host := dialRelay(t, url)
	if err := host.CreateRoom(); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := testutil.RequireReceive(t, host.Events(), 5*time.Second, "create confirmation")
	if created.Kind != EventRoomCreated || created.Room == "" || created.Self == "" {
		t.Fatalf("unexpected event %+v", created)
	}
	if host.Room() != created.Room || host.Self() != created.Self {
		t.Fatal("client did not record its room and peer id")
	}

	guest := dialRelay(t, url)
	if err := guest.JoinRoom(created.Room); err != nil {
		t.Fatalf("join: %v", err)
	}
	joined := testutil.RequireReceive(t, guest.Events(), 5*time.Second, "join confirmation")
	if joined.Kind != EventRoomJoined || joined.Room != created.Room {
		t.Fatalf("unexpected event %+v", joined)
	}

	roster := drainUntil(t, guest.Events(), EventRoster)
	if len(roster.Peers) != 2 || roster.Peers[0] != created.Self {
		t.Fatalf("expected host-first roster, got %v", roster.Peers)
	}

	// The existing member sees the updated roster too.
	hostRoster := drainUntil(t, host.Events(), EventRoster)
	if len(hostRoster.Peers) != 2 {
		t.Fatalf("host roster %v", hostRoster.Peers)
	}
}

func TestRelayClient_JoinUnknownRoom(t *testing.T) {
	url := startRelay(t)

	client := dialRelay(t, url)
	if err := client.JoinRoom("zzzz"); err != nil {
		t.Fatalf("join: %v", err)
	}

	event := testutil.RequireReceive(t, client.Events(), 5*time.Second, "error event")
	if event.Kind != EventError || event.Code != string(relay.ErrorNotFound) {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestRelayClient_SignalRoundTrip(t *testing.T) {
	url := startRelay(t)

	host := dialRelay(t, url)
	if err := host.CreateRoom(); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := testutil.RequireReceive(t, host.Events(), 5*time.Second, "create confirmation")

	guest := dialRelay(t, url)
	if err := guest.JoinRoom(created.Room); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainUntil(t, guest.Events(), EventRoster)

	// Signal before joining a room is rejected locally.
	outsider := dialRelay(t, url)
	if err := outsider.Signal("host", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected signal without room to fail")
	}

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0","candidates":[]}`)
	if err := guest.Signal("host", payload); err != nil {
		t.Fatalf("signal: %v", err)
	}

	event := drainUntil(t, host.Events(), EventSignal)
	if event.From != guest.Self() {
		t.Fatalf("signal from %s, want %s", event.From, guest.Self())
	}
	if string(event.Payload) != string(payload) {
		t.Fatalf("payload %s, want %s", event.Payload, payload)
	}
}

func TestRelayClient_PeerLeftAndClose(t *testing.T) {
	url := startRelay(t)

	host := dialRelay(t, url)
	if err := host.CreateRoom(); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := testutil.RequireReceive(t, host.Events(), 5*time.Second, "create confirmation")

	guest := dialRelay(t, url)
	if err := guest.JoinRoom(created.Room); err != nil {
		t.Fatalf("join: %v", err)
	}
	guestSelf := testutil.RequireReceive(t, guest.Events(), 5*time.Second, "join confirmation").Self
	drainUntil(t, host.Events(), EventRoster)

	guest.Close()

	left := drainUntil(t, host.Events(), EventPeerLeft)
	if left.Peer != guestSelf {
		t.Fatalf("left peer %s, want %s", left.Peer, guestSelf)
	}

	// Closing our own connection ends the event stream.
	host.Close()
	drainUntil(t, host.Events(), EventClosed)
}
