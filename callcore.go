/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package callcore is the top-level client for peer-to-peer calling:
// a signaling transport to the relay, the call state machine, and the
// local call-history store, aggregated behind one facade.
package callcore

import (
	"fmt"
	"sync"

	"github.com/techstandakmr/callcore/callhistory"
	"github.com/techstandakmr/callcore/calling"
	"github.com/techstandakmr/callcore/signaling"
)

// Config holds configuration for the callcore client.
type Config struct {
	// Signaling configures the relay transport; nil uses defaults.
	Signaling *signaling.Config
	// Calling configures the call state machine; nil uses defaults.
	Calling *calling.Config
	// HistoryDir is where the call-history database lives. Empty
	// disables history persistence.
	HistoryDir string
}

// Client is the top-level calling client for one user identity.
type Client struct {
	userID string

	signalingClient *signaling.Client
	session         *calling.Session
	history         *callhistory.Store

	mu sync.Mutex
}

// NewClient creates a calling client. relayURL is the relay's websocket
// endpoint and token the relay access token for this user (see
// signaling.MintToken).
func NewClient(relayURL, userID, token string, config *Config) (*Client, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}
	if config == nil {
		config = &Config{}
	}

	c := &Client{userID: userID}

	var err error
	if config.HistoryDir != "" {
		c.history, err = callhistory.Open(config.HistoryDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open call history: %w", err)
		}
	}

	c.signalingClient = signaling.New(relayURL, userID, token, config.Signaling)

	var recorder calling.Recorder
	if c.history != nil {
		recorder = c.history
	}
	c.session = calling.NewSession(userID, c.signalingClient, recorder, config.Calling)
	c.session.Bind(c.signalingClient)

	return c, nil
}

// Connect establishes the signaling connection to the relay.
func (c *Client) Connect() error {
	return c.signalingClient.Connect()
}

// Disconnect closes the signaling connection. An accepted call keeps
// its media flowing peer-to-peer; only signaling stops.
func (c *Client) Disconnect() error {
	return c.signalingClient.Disconnect()
}

// UserID returns the identity this client acts as.
func (c *Client) UserID() string {
	return c.userID
}

// Signaling returns the relay transport.
func (c *Client) Signaling() *signaling.Client {
	return c.signalingClient
}

// Calling returns the call session (state machine).
func (c *Client) Calling() *calling.Session {
	return c.session
}

// History returns the call-history store, or nil when persistence is
// disabled.
func (c *Client) History() *callhistory.Store {
	return c.history
}

// Close disconnects and releases the history store.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.signalingClient.Disconnect()
	if c.history != nil {
		if herr := c.history.Close(); herr != nil && err == nil {
			err = herr
		}
	}
	return err
}
