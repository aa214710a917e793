/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techstandakmr/callcore/signaling"
)

var testSecret = []byte("test-relay-secret")

func newTestHub(t *testing.T, presence Presence) (*Hub, string) {
	t.Helper()
	hub := NewHub(testSecret, presence)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func mintTestToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := signaling.MintToken(userID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	return token
}

func dial(t *testing.T, wsURL, userID string) *websocket.Conn {
	t.Helper()
	headers := http.Header{"Authorization": {"Bearer " + mintTestToken(t, userID)}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, headers)
	if err != nil {
		t.Fatalf("Dial as %s failed: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *signaling.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	msg, err := signaling.ParseMessage(raw)
	if err != nil {
		t.Fatalf("Received unparseable frame: %v", err)
	}
	return msg
}

func waitOnline(t *testing.T, hub *Hub, userID string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Online(userID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s online=%v", userID, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubAuth(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		_, wsURL := newTestHub(t, nil)
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err == nil {
			t.Fatal("Expected dial to fail without a token")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %+v", resp)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		_, wsURL := newTestHub(t, nil)
		headers := http.Header{"Authorization": {"Bearer garbage"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, headers)
		if err == nil {
			t.Fatal("Expected dial to fail with a bad token")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %+v", resp)
		}
	})

	t.Run("token minted with another secret", func(t *testing.T) {
		_, wsURL := newTestHub(t, nil)
		token, err := signaling.MintToken("alice", []byte("other-secret"), time.Hour)
		if err != nil {
			t.Fatalf("MintToken failed: %v", err)
		}
		headers := http.Header{"Authorization": {"Bearer " + token}}
		if _, _, err := websocket.DefaultDialer.Dial(wsURL, headers); err == nil {
			t.Error("Expected dial to fail with a foreign token")
		}
	})

	t.Run("token via query parameter", func(t *testing.T) {
		hub, wsURL := newTestHub(t, nil)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+mintTestToken(t, "alice"), nil)
		if err != nil {
			t.Fatalf("Dial with query token failed: %v", err)
		}
		defer func() { _ = conn.Close() }()
		waitOnline(t, hub, "alice", true)
	})
}

func TestHubRouting(t *testing.T) {
	t.Run("routes frames to the addressee", func(t *testing.T) {
		hub, wsURL := newTestHub(t, nil)
		alice := dial(t, wsURL, "alice")
		bob := dial(t, wsURL, "bob")
		waitOnline(t, hub, "alice", true)
		waitOnline(t, hub, "bob", true)

		frame := `{"type":"call:initiate","to":"bob","callData":{` +
			`"customID":"call-1","caller":"alice","callee":"bob","offer":"offer-sdp"}}`
		if err := alice.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}

		msg := readFrame(t, bob)
		if msg.Type != signaling.MessageCallInitiate {
			t.Errorf("Expected call:initiate, got %s", msg.Type)
		}
		if msg.CallData.CustomID != "call-1" {
			t.Errorf("Expected customID call-1, got %s", msg.CallData.CustomID)
		}
		if msg.To != "" {
			t.Errorf("Expected To stripped before delivery, got %q", msg.To)
		}
	})

	t.Run("stamps From with the token identity", func(t *testing.T) {
		hub, wsURL := newTestHub(t, nil)
		alice := dial(t, wsURL, "alice")
		bob := dial(t, wsURL, "bob")
		waitOnline(t, hub, "alice", true)
		waitOnline(t, hub, "bob", true)

		// The frame claims to be from mallory; the relay must overwrite it.
		frame := `{"type":"call:ended","to":"bob","from":"mallory","callData":{"customID":"call-1"}}`
		if err := alice.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}

		msg := readFrame(t, bob)
		if msg.From != "alice" {
			t.Errorf("Expected From stamped as alice, got %q", msg.From)
		}
	})

	t.Run("drops invalid frames", func(t *testing.T) {
		hub, wsURL := newTestHub(t, nil)
		alice := dial(t, wsURL, "alice")
		bob := dial(t, wsURL, "bob")
		waitOnline(t, hub, "alice", true)
		waitOnline(t, hub, "bob", true)

		bad := [][]byte{
			[]byte(`{not json`),
			[]byte(`{"type":"nonsense","to":"bob","callData":{"customID":"x"}}`),
			[]byte(`{"type":"call:ended","to":"bob","callData":{}}`),
		}
		for _, raw := range bad {
			if err := alice.WriteMessage(websocket.TextMessage, raw); err != nil {
				t.Fatalf("WriteMessage failed: %v", err)
			}
		}
		good := `{"type":"call:ended","to":"bob","callData":{"customID":"real"}}`
		if err := alice.WriteMessage(websocket.TextMessage, []byte(good)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}

		msg := readFrame(t, bob)
		if msg.CallData.CustomID != "real" {
			t.Errorf("Expected only the valid frame delivered, got %+v", msg)
		}
	})

	t.Run("frame for an offline peer is dropped", func(t *testing.T) {
		hub, wsURL := newTestHub(t, nil)
		alice := dial(t, wsURL, "alice")
		waitOnline(t, hub, "alice", true)

		frame := `{"type":"call:ended","to":"nobody","callData":{"customID":"call-1"}}`
		if err := alice.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
		// The connection stays healthy afterwards.
		frame2 := `{"type":"call:ended","to":"alice","callData":{"customID":"loopback"}}`
		if err := alice.WriteMessage(websocket.TextMessage, []byte(frame2)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
		msg := readFrame(t, alice)
		if msg.CallData.CustomID != "loopback" {
			t.Errorf("Expected the loopback frame, got %+v", msg)
		}
	})
}

func TestHubConnections(t *testing.T) {
	t.Run("presence follows the connection", func(t *testing.T) {
		presence := NewMemoryPresence()
		hub, wsURL := newTestHub(t, presence)
		conn := dial(t, wsURL, "alice")
		waitOnline(t, hub, "alice", true)

		online, err := presence.IsOnline(context.Background(), "alice")
		if err != nil || !online {
			t.Errorf("Expected alice online in presence, got %v/%v", online, err)
		}

		_ = conn.Close()
		waitOnline(t, hub, "alice", false)

		deadline := time.Now().Add(2 * time.Second)
		for {
			online, _ = presence.IsOnline(context.Background(), "alice")
			if !online {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("Expected alice offline in presence after close")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("new connection replaces the old one", func(t *testing.T) {
		hub, wsURL := newTestHub(t, nil)
		first := dial(t, wsURL, "alice")
		waitOnline(t, hub, "alice", true)

		second := dial(t, wsURL, "alice")
		defer func() { _ = second.Close() }()

		// The first connection is closed by the hub.
		_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := first.ReadMessage(); err == nil {
			t.Error("Expected the first connection to be closed")
		}

		// Frames now route to the second connection.
		waitOnline(t, hub, "alice", true)
		bob := dial(t, wsURL, "bob")
		frame := `{"type":"call:ended","to":"alice","callData":{"customID":"call-1"}}`
		if err := bob.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
		msg := readFrame(t, second)
		if msg.CallData.CustomID != "call-1" {
			t.Errorf("Expected the frame on the replacement connection, got %+v", msg)
		}
	})
}

func TestMemoryPresence(t *testing.T) {
	p := NewMemoryPresence()
	ctx := context.Background()

	online, err := p.IsOnline(ctx, "alice")
	if err != nil || online {
		t.Errorf("Expected alice offline initially, got %v/%v", online, err)
	}
	if err := p.Connect(ctx, "alice"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	online, _ = p.IsOnline(ctx, "alice")
	if !online {
		t.Error("Expected alice online after Connect")
	}
	if err := p.Disconnect(ctx, "alice"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	online, _ = p.IsOnline(ctx, "alice")
	if online {
		t.Error("Expected alice offline after Disconnect")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
