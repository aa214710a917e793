/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package relay implements the central signaling relay: a websocket hub
// that authenticates clients, tracks presence, and routes typed
// call-signaling frames to the addressed peer. Frames that fail schema
// validation are dropped at the boundary and never forwarded.
package relay

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techstandakmr/callcore/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // SDP offers with inline candidates get large
	sendQueueSize  = 32
)

// Hub routes signaling frames between connected clients.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*clientConn
	secret   []byte
	presence Presence
	upgrader websocket.Upgrader
}

// clientConn is one authenticated websocket connection.
type clientConn struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewHub creates a relay hub. presence may be nil, in which case an
// in-memory registry is used.
func NewHub(secret []byte, presence Presence) *Hub {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	return &Hub{
		clients:  make(map[string]*clientConn),
		secret:   secret,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The relay authenticates with bearer tokens, not cookies,
			// so cross-origin upgrades carry no ambient credentials.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket after verifying the
// bearer token, then pumps frames for the connection's lifetime.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	userID, err := signaling.VerifyToken(token, h.secret)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: upgrade failed for %s: %v", userID, err)
		return
	}

	c := &clientConn{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}

	h.register(c)
	go c.writePump()
	c.readPump(h)
	h.unregister(c)
}

// register adds the connection, replacing any previous connection for
// the same user (last one wins, matching a page reload).
func (h *Hub) register(c *clientConn) {
	h.mu.Lock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	if err := h.presence.Connect(context.Background(), c.userID); err != nil {
		log.Printf("relay: presence connect for %s: %v", c.userID, err)
	}
	log.Printf("relay: %s connected", c.userID)
}

func (h *Hub) unregister(c *clientConn) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	c.close()
	if err := h.presence.Disconnect(context.Background(), c.userID); err != nil {
		log.Printf("relay: presence disconnect for %s: %v", c.userID, err)
	}
	log.Printf("relay: %s disconnected", c.userID)
}

// route delivers a validated frame to its addressee. Unknown or offline
// addressees drop the frame; the caller-side timeout supervisor covers
// the silence.
func (h *Hub) route(msg *signaling.Message) {
	if msg.To == "" {
		return
	}

	h.mu.RLock()
	target := h.clients[msg.To]
	h.mu.RUnlock()

	if target == nil {
		log.Printf("relay: dropping %s for offline peer %s", msg.Type, msg.To)
		return
	}

	// The addressee is routing metadata; the delivered frame carries
	// only the authenticated From.
	out := *msg
	out.To = ""

	raw, err := json.Marshal(&out)
	if err != nil {
		log.Printf("relay: marshal failed: %v", err)
		return
	}

	select {
	case target.send <- raw:
	default:
		// Slow consumer; dropping beats blocking every other route.
		log.Printf("relay: send queue full for %s, dropping %s", msg.To, msg.Type)
	}
}

// Online reports whether a user currently holds a connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID] != nil
}

// readPump reads, validates, stamps and routes inbound frames.
func (c *clientConn) readPump(h *Hub) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		_ = c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := signaling.ParseMessage(raw)
		if err != nil {
			log.Printf("relay: dropping frame from %s: %v", c.userID, err)
			continue
		}

		// The sender identity always comes from the token, never the frame.
		msg.From = c.userID
		h.route(msg)
	}
}

// writePump writes queued frames and keepalive pings.
func (c *clientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *clientConn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// bearerToken extracts the token from the Authorization header, or from
// the access_token query parameter for clients that cannot set headers.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}
