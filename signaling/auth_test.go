/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"testing"
	"time"
)

func TestMintToken(t *testing.T) {
	secret := []byte("relay-secret")

	t.Run("mint and verify", func(t *testing.T) {
		token, err := MintToken("alice", secret, time.Hour)
		if err != nil {
			t.Fatalf("MintToken failed: %v", err)
		}
		if token == "" {
			t.Fatal("Expected a non-empty token")
		}

		userID, err := VerifyToken(token, secret)
		if err != nil {
			t.Fatalf("VerifyToken failed: %v", err)
		}
		if userID != "alice" {
			t.Errorf("Expected subject alice, got %s", userID)
		}
	})

	t.Run("empty userID", func(t *testing.T) {
		if _, err := MintToken("", secret, time.Hour); err == nil {
			t.Error("Expected an error for an empty userID")
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		if _, err := MintToken("alice", nil, time.Hour); err == nil {
			t.Error("Expected an error for an empty secret")
		}
	})
}

func TestVerifyToken(t *testing.T) {
	secret := []byte("relay-secret")

	t.Run("wrong secret", func(t *testing.T) {
		token, err := MintToken("alice", secret, time.Hour)
		if err != nil {
			t.Fatalf("MintToken failed: %v", err)
		}
		if _, err := VerifyToken(token, []byte("other-secret")); err == nil {
			t.Error("Expected verification to fail with the wrong secret")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := MintToken("alice", secret, -time.Minute)
		if err != nil {
			t.Fatalf("MintToken failed: %v", err)
		}
		if _, err := VerifyToken(token, secret); err == nil {
			t.Error("Expected verification to fail for an expired token")
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := VerifyToken("not.a.token", secret); err == nil {
			t.Error("Expected verification to fail for a garbage token")
		}
	})
}
