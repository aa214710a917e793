/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// MediaEngine manages the WebRTC peer connection and media tracks for a
// call. It produces and consumes session descriptions, keeps track
// addition idempotent, and raises the renegotiation-needed event the
// session reacts to when tracks change mid-call.
type MediaEngine struct {
	mu             sync.Mutex
	peerConnection *webrtc.PeerConnection
	localTracks    map[string]*webrtc.TrackLocalStaticRTP
	audioEnabled   bool
	videoEnabled   bool
	onRemoteTrack  func(track *webrtc.TrackRemote)
	onNegotiation  func()
	api            *webrtc.API
}

// MediaConfig holds configuration for the media engine
type MediaConfig struct {
	// ICEServers is the list of ICE servers (STUN/TURN) to use
	ICEServers []webrtc.ICEServer
}

// DefaultMediaConfig returns a MediaConfig with a public STUN server.
// Pion needs a srflx candidate when running behind NAT; a browser peer
// gathers its own via ICE connectivity checks.
func DefaultMediaConfig() *MediaConfig {
	return &MediaConfig{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// NewMediaEngine creates a new WebRTC media engine for a call
func NewMediaEngine(config *MediaConfig) (*MediaEngine, error) {
	if config == nil {
		config = DefaultMediaConfig()
	}

	// Default codecs: calls negotiate against a browser peer, so Opus
	// and the standard video codecs all apply.
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	// Default interceptors (RTCP reports, NACK, TWCC) are required with
	// a custom MediaEngine; without them incoming SRTP is not processed
	// and OnTrack may never fire.
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	engine := &MediaEngine{
		peerConnection: pc,
		localTracks:    make(map[string]*webrtc.TrackLocalStaticRTP),
		audioEnabled:   true,
		videoEnabled:   true,
		api:            api,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("PC: connection state %s", s.String())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("PC: remote track received codec=%s ssrc=%d", track.Codec().MimeType, track.SSRC())
		engine.mu.Lock()
		handler := engine.onRemoteTrack
		engine.mu.Unlock()

		if handler != nil {
			handler(track)
		}
	})

	pc.OnNegotiationNeeded(func() {
		engine.mu.Lock()
		handler := engine.onNegotiation
		engine.mu.Unlock()

		if handler != nil {
			handler()
		}
	})

	return engine, nil
}

// OnRemoteTrack sets the callback for when a remote track is received
func (me *MediaEngine) OnRemoteTrack(handler func(track *webrtc.TrackRemote)) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.onRemoteTrack = handler
}

// OnNegotiationNeeded sets the callback fired when the engine
// determines a renegotiation is needed (e.g. a track was added).
func (me *MediaEngine) OnNegotiationNeeded(handler func()) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.onNegotiation = handler
}

// AddTrack adds a local track with the given identity to the peer
// connection. Adding a track whose ID already has a sender is a no-op
// returning the existing track: repeated negotiation-needed events must
// never create duplicate senders.
func (me *MediaEngine) AddTrack(capability webrtc.RTPCodecCapability, id, streamID string) (*webrtc.TrackLocalStaticRTP, error) {
	me.mu.Lock()
	defer me.mu.Unlock()

	if existing, ok := me.localTracks[id]; ok {
		return existing, nil
	}
	for _, sender := range me.peerConnection.GetSenders() {
		if t := sender.Track(); t != nil && t.ID() == id {
			if local, ok := t.(*webrtc.TrackLocalStaticRTP); ok {
				me.localTracks[id] = local
				return local, nil
			}
			return nil, fmt.Errorf("track %q already attached with a different type", id)
		}
	}

	track, err := webrtc.NewTrackLocalStaticRTP(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create track %q: %w", id, err)
	}

	transceiver, err := me.peerConnection.AddTransceiverFromTrack(track,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add transceiver for %q: %w", id, err)
	}

	// Read RTCP from the sender to keep the interceptors fed.
	go func() {
		sender := transceiver.Sender()
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	me.localTracks[id] = track
	return track, nil
}

// AddAudioTrack adds the local Opus audio track.
func (me *MediaEngine) AddAudioTrack() (*webrtc.TrackLocalStaticRTP, error) {
	return me.AddTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", "callcore")
}

// AddVideoTrack adds the local VP8 video track.
func (me *MediaEngine) AddVideoTrack() (*webrtc.TrackLocalStaticRTP, error) {
	return me.AddTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", "callcore")
}

// SenderCount returns the number of RTP senders on the connection.
func (me *MediaEngine) SenderCount() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.peerConnection.GetSenders())
}

// CreateOffer creates an SDP offer and waits for ICE gathering so the
// returned SDP carries the candidates inline.
func (me *MediaEngine) CreateOffer() (string, error) {
	me.mu.Lock()
	defer me.mu.Unlock()

	offer, err := me.peerConnection.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}

	if err := me.peerConnection.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(me.peerConnection)
	<-gatherComplete

	localDesc := me.peerConnection.LocalDescription()
	if localDesc == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}

	return localDesc.SDP, nil
}

// CreateAnswer applies the remote offer and produces the SDP answer.
func (me *MediaEngine) CreateAnswer(remoteOffer string) (string, error) {
	me.mu.Lock()
	defer me.mu.Unlock()

	if err := me.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  remoteOffer,
	}); err != nil {
		return "", fmt.Errorf("failed to set remote offer: %w", err)
	}

	answer, err := me.peerConnection.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	if err := me.peerConnection.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(me.peerConnection)
	<-gatherComplete

	localDesc := me.peerConnection.LocalDescription()
	if localDesc == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}

	return localDesc.SDP, nil
}

// SetRemoteAnswer applies the remote SDP answer. If the connection is
// already in stable state (answer already applied), this is a no-op:
// the relay may deliver the same frame more than once after a reconnect.
func (me *MediaEngine) SetRemoteAnswer(sdp string) error {
	me.mu.Lock()
	defer me.mu.Unlock()

	if me.peerConnection.SignalingState() == webrtc.SignalingStateStable {
		log.Printf("PC: ignoring duplicate SDP answer (signaling state already stable)")
		return nil
	}

	return me.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// SetAudioEnabled flips the local audio state, returning the new value.
func (me *MediaEngine) SetAudioEnabled(enabled bool) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.audioEnabled = enabled
	return me.audioEnabled
}

// SetVideoEnabled flips the local video state, returning the new value.
func (me *MediaEngine) SetVideoEnabled(enabled bool) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.videoEnabled = enabled
	return me.videoEnabled
}

// AudioEnabled reports whether local audio is live.
func (me *MediaEngine) AudioEnabled() bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.audioEnabled
}

// VideoEnabled reports whether local video is live.
func (me *MediaEngine) VideoEnabled() bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.videoEnabled
}

// GetLocalTrack returns the local track with the given identity, if any.
func (me *MediaEngine) GetLocalTrack(id string) *webrtc.TrackLocalStaticRTP {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.localTracks[id]
}

// GetPeerConnection returns the underlying Pion PeerConnection for
// advanced use (e.g. RTP relay).
func (me *MediaEngine) GetPeerConnection() *webrtc.PeerConnection {
	return me.peerConnection
}

// GetConnectionState returns the current peer connection state
func (me *MediaEngine) GetConnectionState() webrtc.PeerConnectionState {
	return me.peerConnection.ConnectionState()
}

// Close stops every sender and closes the peer connection. Tearing
// down the senders before the connection releases capture devices on
// the embedding side; skipping it leaks camera and microphone access.
func (me *MediaEngine) Close() error {
	me.mu.Lock()
	defer me.mu.Unlock()

	if me.peerConnection == nil {
		return nil
	}

	for _, sender := range me.peerConnection.GetSenders() {
		_ = sender.Stop()
	}
	me.localTracks = make(map[string]*webrtc.TrackLocalStaticRTP)

	if err := me.peerConnection.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}
