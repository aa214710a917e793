/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package signaling provides the websocket transport between a calling
// client and the relay. It delivers typed call-signaling frames to a
// specific peer, reconnects with exponential backoff, and buffers
// outbound frames while the channel is still connecting so that a send
// attempted before open is flushed rather than dropped.
package signaling

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds the configuration for the signaling client
type Config struct {
	PingInterval                time.Duration // Interval between ping messages
	PongTimeout                 time.Duration // Timeout for receiving a pong response
	BackoffTimeMax              time.Duration // Maximum time between connection attempts
	BackoffTimeReset            time.Duration // Initial time before the first retry
	MaxRetries                  int           // Number of times to retry before giving up
	InitialConnectionMaxRetries int           // Number of times to retry before giving up on the initial connection
	HandshakeTimeout            time.Duration // Websocket dial handshake timeout
	PendingQueueLimit           int           // Maximum frames buffered while disconnected
}

// DefaultConfig returns the default configuration for the signaling client
func DefaultConfig() *Config {
	return &Config{
		PingInterval:                30 * time.Second,
		PongTimeout:                 10 * time.Second,
		BackoffTimeMax:              32 * time.Second,
		BackoffTimeReset:            1 * time.Second,
		MaxRetries:                  3,
		InitialConnectionMaxRetries: 5,
		HandshakeTimeout:            10 * time.Second,
		PendingQueueLimit:           64,
	}
}

// Handler is a function that handles an inbound signaling message
type Handler func(msg *Message)

// Client is the websocket signaling client. One instance serves one
// user identity for the lifetime of the process.
type Client struct {
	config *Config
	userID string
	token  string
	wsURL  string

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	connecting   bool
	hasConnected bool
	handlers     map[MessageType][]Handler
	pending      []*Message
	closeCh      chan struct{}
	done         chan struct{}

	writeMu sync.Mutex

	retryCount     int
	currentBackoff time.Duration
}

// New creates a new signaling client for the given user. The token is
// the relay access token minted by MintToken (or issued out of band).
func New(wsURL, userID, token string, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		config:         config,
		userID:         userID,
		token:          token,
		wsURL:          wsURL,
		handlers:       make(map[MessageType][]Handler),
		closeCh:        make(chan struct{}),
		done:           make(chan struct{}),
		currentBackoff: config.BackoffTimeReset,
	}
}

// UserID returns the identity this client is connected as.
func (c *Client) UserID() string {
	return c.userID
}

// On registers a handler for a specific message type. The wildcard
// type "*" receives every delivered frame.
func (c *Client) On(msgType MessageType, handler Handler) {
	if handler == nil {
		return
	}

	c.mu.Lock()
	c.handlers[msgType] = append(c.handlers[msgType], handler)
	c.mu.Unlock()
}

// Off removes all handlers for a specific message type.
func (c *Client) Off(msgType MessageType) {
	c.mu.Lock()
	delete(c.handlers, msgType)
	c.mu.Unlock()
}

// IsConnected returns whether the client currently holds an open connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the websocket connection to the relay.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return fmt.Errorf("connection attempt already in progress")
	}
	c.connecting = true
	c.mu.Unlock()

	return c.connectWithBackoff()
}

// Disconnect closes the websocket connection and stops reconnection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected && !c.connecting {
		c.mu.Unlock()
		return nil
	}

	close(c.closeCh)
	c.closeCh = make(chan struct{})
	c.done = make(chan struct{})

	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Disconnected by client"))
		_ = conn.Close()
	}

	return nil
}

// Send delivers a typed frame to the relay. While the channel is still
// connecting (or between reconnect attempts) the frame is buffered and
// flushed once the connection opens; it is never silently dropped
// unless the pending queue limit is exceeded.
func (c *Client) Send(msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if !c.connected {
		if len(c.pending) >= c.config.PendingQueueLimit {
			c.mu.Unlock()
			return fmt.Errorf("pending queue full (%d frames)", c.config.PendingQueueLimit)
		}
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	return c.write(conn, msg)
}

// PendingCount returns the number of frames queued while disconnected.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// write marshals and writes one frame, serializing concurrent writers.
func (c *Client) write(conn *websocket.Conn, msg *Message) error {
	if conn == nil {
		return fmt.Errorf("websocket connection is nil")
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// connectWithBackoff attempts to connect with exponential backoff.
func (c *Client) connectWithBackoff() error {
	c.retryCount = 0
	c.currentBackoff = c.config.BackoffTimeReset

	maxRetries := c.config.MaxRetries
	if !c.hasConnected {
		maxRetries = c.config.InitialConnectionMaxRetries
	}

	var err error
	for c.retryCount <= maxRetries {
		err = c.attemptConnection()
		if err == nil {
			return nil
		}

		c.retryCount++
		if c.retryCount > maxRetries {
			break
		}

		c.mu.Lock()
		closeCh := c.closeCh
		c.mu.Unlock()

		select {
		case <-time.After(c.currentBackoff):
			c.currentBackoff *= 2
			if c.currentBackoff > c.config.BackoffTimeMax {
				c.currentBackoff = c.config.BackoffTimeMax
			}
		case <-closeCh:
			return nil // Stopped by user
		}
	}

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
	return fmt.Errorf("failed to connect after %d attempts: %v", c.retryCount, err)
}

// attemptConnection makes a single connection attempt to the relay.
func (c *Client) attemptConnection() error {
	parsedURL, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %v", err)
	}
	query := parsedURL.Query()
	query.Set("clientTimestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	parsedURL.RawQuery = query.Encode()

	headers := make(map[string][]string)
	if c.token != "" {
		headers["Authorization"] = []string{"Bearer " + c.token}
	}
	headers["TrackingID"] = []string{fmt.Sprintf("callcore_%d", time.Now().UnixMilli())}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(parsedURL.String(), headers)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %v", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.connecting = false
	c.hasConnected = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	// Flush frames queued while the channel was connecting.
	for _, msg := range pending {
		if err := c.write(conn, msg); err != nil {
			log.Printf("signaling: failed to flush pending frame %s: %v", msg.Type, err)
		}
	}

	go c.startPingPong()
	go c.listen()

	return nil
}

// listen reads frames from the websocket until the connection drops.
func (c *Client) listen() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionError(err)
			return
		}

		msg, err := ParseMessage(raw)
		if err != nil {
			// Frames that fail boundary validation never reach the
			// state machine.
			log.Printf("signaling: dropping frame: %v", err)
			continue
		}

		c.dispatch(msg)
	}
}

// dispatch fans a delivered frame out to its handlers. Handlers run
// synchronously on the read loop: signaling frames form one ordered
// protocol, and a frame overtaking its predecessor (call:ended landing
// before call:accepted) would leave the state machine in a state it
// cannot recover from.
func (c *Client) dispatch(msg *Message) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers[msg.Type]))
	handlers = append(handlers, c.handlers[msg.Type]...)
	wildcard := make([]Handler, 0, len(c.handlers["*"]))
	wildcard = append(wildcard, c.handlers["*"]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
	for _, handler := range wildcard {
		handler(msg)
	}
}

// handleConnectionError triggers reconnection unless the client was
// deliberately disconnected.
func (c *Client) handleConnectionError(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	closeCh := c.closeCh
	c.mu.Unlock()

	if !wasConnected {
		return
	}

	select {
	case <-closeCh:
		// Deliberate disconnect, don't reconnect.
	default:
		log.Printf("signaling: connection lost (%v), reconnecting", err)
		go c.reconnect()
	}
}

// reconnect re-establishes the connection after an unexpected drop.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	conn := c.conn
	c.conn = nil
	c.done = make(chan struct{})
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	_ = c.connectWithBackoff()
}

// startPingPong keeps the connection alive with periodic pings.
func (c *Client) startPingPong() {
	c.mu.Lock()
	done := c.done
	closeCh := c.closeCh
	c.mu.Unlock()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-closeCh:
			return
		case <-done:
			return
		}
	}
}

// ping sends a ping frame and arms the pong deadline.
func (c *Client) ping() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("websocket connection is nil")
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout)); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.PingMessage, []byte(fmt.Sprintf("%d", time.Now().UnixMilli())))
}
