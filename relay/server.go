// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// signalPath is the websocket endpoint participants connect to. Every
// other request path serves the static document.
const signalPath = "/signal"

// writeWait bounds how long a single websocket write may block before
// the member is considered stuck.
const writeWait = 10 * time.Second

// defaultDocument is served when no document file is configured. The
// real client page is deployed separately; this placeholder keeps the
// relay self-contained for development.
const defaultDocument = `<!doctype html>
<html><head><meta charset="utf-8"><title>skirmish relay</title></head>
<body><p>Skirmish rendezvous relay. Connect a game client to /signal.</p></body>
</html>
`

// Server is the rendezvous relay process: it upgrades websocket
// connections on /signal, runs one read loop per member, and serves a
// single static document for any other path. All room state lives in
// the Registry; the server holds no game knowledge.
type Server struct {
	registry *Registry
	logger   *slog.Logger
	document []byte
	upgrader websocket.Upgrader
}

// NewServer creates a relay server around the given registry. document
// is the static page served off the signaling path; nil selects a
// built-in placeholder.
func NewServer(registry *Registry, document []byte, logger *slog.Logger) *Server {
	if document == nil {
		document = []byte(defaultDocument)
	}
	return &Server{
		registry: registry,
		logger:   logger,
		document: document,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The relay is the rendezvous point for browser and native
			// clients alike; there is no same-origin relationship to
			// enforce.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the relay's HTTP handler: websocket upgrade on
// /signal, the static document everywhere else.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(signalPath, s.handleSignal)
	mux.HandleFunc("/", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = writer.Write(s.document)
	})
	return mux
}

// Serve runs the relay on the given address until ctx is cancelled.
// When certFile and keyFile are both set the listener is TLS;
// otherwise it is plaintext (development and tests only).
func (s *Server) Serve(ctx context.Context, listen, certFile, keyFile string) error {
	server := &http.Server{
		Addr:         listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("relay listening", "address", listen, "tls", certFile != "")

	var err error
	if certFile != "" {
		err = server.ListenAndServeTLS(certFile, keyFile)
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// wsMember adapts a websocket connection to MemberConn. Writes are
// serialized with a mutex because room broadcasts and direct sends can
// race on the same connection.
type wsMember struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (m *wsMember) Send(message ServerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return m.conn.WriteJSON(message)
}

// handleSignal upgrades the connection and runs the member's read loop
// until the connection drops. Each connection belongs to at most one
// room; the first successful create or join binds it.
func (s *Server) handleSignal(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	member := &wsMember{conn: conn}

	var roomID, peerID string
	defer func() {
		if roomID != "" {
			s.registry.Leave(roomID, peerID)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		message, err := DecodeClientMessage(data)
		if err != nil {
			// Malformed messages are dropped without feedback.
			s.logger.Debug("dropping malformed message", "error", err)
			continue
		}

		switch message.Type {
		case TypeCreate:
			if roomID != "" {
				continue // already bound to a room
			}
			roomID, peerID = s.registry.Create(member)

		case TypeJoin:
			if roomID != "" {
				continue
			}
			assignedID, err := s.registry.Join(message.Room, member)
			if errors.Is(err, ErrRoomNotFound) {
				_ = member.Send(ServerMessage{Type: TypeError, Code: ErrorNotFound})
				continue
			}
			roomID, peerID = message.Room, assignedID

		case TypeSignal:
			// Members may only route within their own room; anything
			// else is unroutable and dropped.
			if roomID == "" || message.Room != roomID {
				continue
			}
			s.registry.Signal(roomID, peerID, message.To, message.Payload)
		}
	}
}
