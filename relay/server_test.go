// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testServer starts the relay on an httptest listener and returns the
// websocket URL of the signaling endpoint.
func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	server := httptest.NewServer(NewServer(NewRegistry(logger), nil, logger).Handler())
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http") + signalPath
}

// dial opens a client websocket to the relay.
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing relay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one server message with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading from relay: %v", err)
	}
	message, err := DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("relay sent undecodable message %s: %v", data, err)
	}
	return message
}

func writeMessage(t *testing.T, conn *websocket.Conn, message ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(message); err != nil {
		t.Fatalf("writing to relay: %v", err)
	}
}

// TestServer_CreateJoinFlow walks the basic session: A creates a room and
// receives created{room,self}; B joins and receives joined plus the
// full membership; A receives the membership broadcast with both ids
// in join order.
func TestServer_CreateJoinFlow(t *testing.T) {
	_, url := testServer(t)

	connA := dial(t, url)
	writeMessage(t, connA, ClientMessage{Type: TypeCreate})
	created := readMessage(t, connA)
	if created.Type != TypeCreated || created.Room == "" || created.Self == "" {
		t.Fatalf("unexpected create response: %+v", created)
	}

	connB := dial(t, url)
	writeMessage(t, connB, ClientMessage{Type: TypeJoin, Room: created.Room})

	joined := readMessage(t, connB)
	if joined.Type != TypeJoined || joined.Room != created.Room {
		t.Fatalf("unexpected join response: %+v", joined)
	}
	if joined.Self == created.Self {
		t.Fatalf("relay reused peer id %q", joined.Self)
	}

	peersB := readMessage(t, connB)
	if peersB.Type != TypePeers {
		t.Fatalf("B expected peers, got %+v", peersB)
	}
	peersA := readMessage(t, connA)
	if peersA.Type != TypePeers {
		t.Fatalf("A expected peers broadcast, got %+v", peersA)
	}

	for name, list := range map[string][]string{"A": peersA.Peers, "B": peersB.Peers} {
		if len(list) != 2 || list[0] != created.Self || list[1] != joined.Self {
			t.Errorf("%s membership = %v, want [%s %s]", name, list, created.Self, joined.Self)
		}
	}
}

// TestServer_JoinUnknownRoom verifies the not_found error reaches the
// requester and the connection stays usable.
func TestServer_JoinUnknownRoom(t *testing.T) {
	_, url := testServer(t)

	conn := dial(t, url)
	writeMessage(t, conn, ClientMessage{Type: TypeJoin, Room: "zzzz"})

	response := readMessage(t, conn)
	if response.Type != TypeError || response.Code != ErrorNotFound {
		t.Fatalf("response = %+v, want error/not_found", response)
	}

	// The same connection can still create a room afterward.
	writeMessage(t, conn, ClientMessage{Type: TypeCreate})
	if created := readMessage(t, conn); created.Type != TypeCreated {
		t.Fatalf("create after failed join: %+v", created)
	}
}

// TestServer_SignalForwarding verifies payload routing between two
// connected members, including the "host" alias.
func TestServer_SignalForwarding(t *testing.T) {
	_, url := testServer(t)

	connA := dial(t, url)
	writeMessage(t, connA, ClientMessage{Type: TypeCreate})
	created := readMessage(t, connA)

	connB := dial(t, url)
	writeMessage(t, connB, ClientMessage{Type: TypeJoin, Room: created.Room})
	joined := readMessage(t, connB)
	readMessage(t, connB) // peers to B
	readMessage(t, connA) // peers broadcast to A

	payload := `{"type":"offer","sdp":"v=0","candidates":[]}`
	writeMessage(t, connB, ClientMessage{
		Type: TypeSignal, Room: created.Room, To: ToHost,
		Payload: []byte(payload),
	})

	forwarded := readMessage(t, connA)
	if forwarded.Type != TypeForwardedSignal || forwarded.From != joined.Self {
		t.Fatalf("host received %+v, want signal from %s", forwarded, joined.Self)
	}
	if string(forwarded.Payload) != payload {
		t.Errorf("payload altered: %s", forwarded.Payload)
	}
}

// TestServer_DisconnectBroadcastsLeft verifies that closing a member's
// connection produces a left notification for the remaining members.
func TestServer_DisconnectBroadcastsLeft(t *testing.T) {
	_, url := testServer(t)

	connA := dial(t, url)
	writeMessage(t, connA, ClientMessage{Type: TypeCreate})
	created := readMessage(t, connA)

	connB := dial(t, url)
	writeMessage(t, connB, ClientMessage{Type: TypeJoin, Room: created.Room})
	joined := readMessage(t, connB)
	readMessage(t, connB)
	readMessage(t, connA)

	connB.Close()

	left := readMessage(t, connA)
	if left.Type != TypeLeft || left.Peer != joined.Self {
		t.Fatalf("A received %+v, want left/%s", left, joined.Self)
	}
}

// TestServer_MalformedMessagesIgnored verifies that garbage input does
// not terminate the session or generate feedback.
func TestServer_MalformedMessagesIgnored(t *testing.T) {
	_, url := testServer(t)

	conn := dial(t, url)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}
	writeMessage(t, conn, ClientMessage{Type: "reboot"})

	// The connection must still serve a create.
	writeMessage(t, conn, ClientMessage{Type: TypeCreate})
	if created := readMessage(t, conn); created.Type != TypeCreated {
		t.Fatalf("create after garbage: %+v", created)
	}
}

// TestServer_StaticDocument verifies that non-signal paths serve the
// configured document.
func TestServer_StaticDocument(t *testing.T) {
	server, _ := testServer(t)

	for _, path := range []string{"/", "/index.html", "/anything/else"} {
		response, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(response.Body)
		response.Body.Close()

		if response.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, response.StatusCode)
		}
		if !strings.Contains(string(body), "Skirmish") {
			t.Errorf("GET %s body does not look like the relay document", path)
		}
	}
}
