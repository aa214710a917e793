/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callcore

import (
	"testing"
	"time"

	"github.com/techstandakmr/callcore/calling"
	"github.com/techstandakmr/callcore/signaling"
)

func TestNewClient(t *testing.T) {
	t.Run("requires a userID", func(t *testing.T) {
		if _, err := NewClient("ws://localhost:8391/ws", "", "token", nil); err == nil {
			t.Error("Expected an error for an empty userID")
		}
	})

	t.Run("with default config", func(t *testing.T) {
		client, err := NewClient("ws://localhost:8391/ws", "alice", "token", nil)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer func() { _ = client.Close() }()

		if client.UserID() != "alice" {
			t.Errorf("Expected userID alice, got %s", client.UserID())
		}
		if client.Signaling() == nil {
			t.Error("Expected a signaling client")
		}
		if client.Calling() == nil {
			t.Error("Expected a calling session")
		}
		if client.History() != nil {
			t.Error("Expected no history store without HistoryDir")
		}
	})

	t.Run("with history enabled", func(t *testing.T) {
		client, err := NewClient("ws://localhost:8391/ws", "alice", "token", &Config{
			HistoryDir: t.TempDir(),
		})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer func() { _ = client.Close() }()

		if client.History() == nil {
			t.Fatal("Expected a history store")
		}
		if client.History().Path() == "" {
			t.Error("Expected a database path")
		}
	})

	t.Run("custom configs are passed through", func(t *testing.T) {
		client, err := NewClient("ws://localhost:8391/ws", "alice", "token", &Config{
			Signaling: &signaling.Config{
				PingInterval:      10 * time.Second,
				PongTimeout:       5 * time.Second,
				BackoffTimeReset:  time.Second,
				BackoffTimeMax:    8 * time.Second,
				PendingQueueLimit: 8,
			},
			Calling: &calling.Config{
				MissedCallTimeout: 10 * time.Second,
				RejectTimeout:     12 * time.Second,
				AcceptMediaDelay:  time.Second,
			},
		})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer func() { _ = client.Close() }()
	})

	t.Run("session is bound to signaling frames", func(t *testing.T) {
		client, err := NewClient("ws://localhost:8391/ws", "bob", "token", nil)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer func() { _ = client.Close() }()

		// A frame delivered through the signaling layer must reach the
		// call session without any extra wiring.
		incoming := make(chan interface{}, 1)
		client.Calling().Emitter.On(string(calling.CallEventIncoming), func(data interface{}) {
			incoming <- data
		})

		client.Calling().HandleMessage(&signaling.Message{
			Type: signaling.MessageCallInitiate,
			CallData: &signaling.CallData{
				CustomID: "call-1",
				Caller:   "alice",
				Callee:   "bob",
				CallType: string(calling.CallTypeVoice),
				Offer:    "offer-sdp",
			},
		})

		select {
		case data := <-incoming:
			rec := data.(*calling.CallRecord)
			if rec.Caller != "alice" {
				t.Errorf("Expected caller alice, got %s", rec.Caller)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Incoming event never fired")
		}
	})
}
