/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

// localMediaConfig gathers host candidates only, keeping tests off the
// network.
func localMediaConfig() *MediaConfig {
	return &MediaConfig{ICEServers: []webrtc.ICEServer{}}
}

func TestMediaEngine(t *testing.T) {
	t.Run("create and close", func(t *testing.T) {
		me, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if me == nil {
			t.Fatal("Expected non-nil MediaEngine")
		}
		if err := me.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		me, err := NewMediaEngine(nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = me.Close() }()
	})

	t.Run("AddAudioTrack", func(t *testing.T) {
		me, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = me.Close() }()

		track, err := me.AddAudioTrack()
		if err != nil {
			t.Fatalf("AddAudioTrack failed: %v", err)
		}
		if track.ID() != "audio" {
			t.Errorf("Expected track id audio, got %s", track.ID())
		}
		if me.SenderCount() != 1 {
			t.Errorf("Expected 1 sender, got %d", me.SenderCount())
		}
	})

	t.Run("AddTrack is idempotent by track id", func(t *testing.T) {
		me, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = me.Close() }()

		first, err := me.AddAudioTrack()
		if err != nil {
			t.Fatalf("AddAudioTrack failed: %v", err)
		}
		second, err := me.AddAudioTrack()
		if err != nil {
			t.Fatalf("Second AddAudioTrack failed: %v", err)
		}
		if first != second {
			t.Error("Expected the same track back on a duplicate add")
		}
		if me.SenderCount() != 1 {
			t.Errorf("Expected 1 sender after duplicate add, got %d", me.SenderCount())
		}
	})

	t.Run("audio and video tracks", func(t *testing.T) {
		me, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = me.Close() }()

		if _, err := me.AddAudioTrack(); err != nil {
			t.Fatalf("AddAudioTrack failed: %v", err)
		}
		if _, err := me.AddVideoTrack(); err != nil {
			t.Fatalf("AddVideoTrack failed: %v", err)
		}
		if me.SenderCount() != 2 {
			t.Errorf("Expected 2 senders, got %d", me.SenderCount())
		}
		if me.GetLocalTrack("audio") == nil || me.GetLocalTrack("video") == nil {
			t.Error("Expected both local tracks registered")
		}
	})

	t.Run("CreateOffer includes media sections", func(t *testing.T) {
		me, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = me.Close() }()

		if _, err := me.AddAudioTrack(); err != nil {
			t.Fatalf("AddAudioTrack failed: %v", err)
		}
		offer, err := me.CreateOffer()
		if err != nil {
			t.Fatalf("CreateOffer failed: %v", err)
		}
		if !strings.Contains(offer, "m=audio") {
			t.Error("Expected an audio section in the offer")
		}
	})

	t.Run("offer and answer between two engines", func(t *testing.T) {
		caller, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = caller.Close() }()
		callee, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = callee.Close() }()

		if _, err := caller.AddAudioTrack(); err != nil {
			t.Fatalf("AddAudioTrack failed: %v", err)
		}
		offer, err := caller.CreateOffer()
		if err != nil {
			t.Fatalf("CreateOffer failed: %v", err)
		}
		answer, err := callee.CreateAnswer(offer)
		if err != nil {
			t.Fatalf("CreateAnswer failed: %v", err)
		}
		if err := caller.SetRemoteAnswer(answer); err != nil {
			t.Fatalf("SetRemoteAnswer failed: %v", err)
		}

		// Applying the same answer again must not error once stable.
		if err := caller.SetRemoteAnswer(answer); err != nil {
			t.Errorf("Duplicate SetRemoteAnswer should be a no-op, got %v", err)
		}
	})

	t.Run("enable flags", func(t *testing.T) {
		me, err := NewMediaEngine(localMediaConfig())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer func() { _ = me.Close() }()

		if !me.AudioEnabled() || !me.VideoEnabled() {
			t.Error("Expected both tracks enabled by default")
		}
		if got := me.SetAudioEnabled(false); got {
			t.Error("Expected SetAudioEnabled(false) to return false")
		}
		if me.AudioEnabled() {
			t.Error("Expected audio disabled")
		}
		if got := me.SetVideoEnabled(false); got {
			t.Error("Expected SetVideoEnabled(false) to return false")
		}
	})
}
