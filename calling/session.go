/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calling implements the call state machine for peer-to-peer
// voice and video calls: initiation, ringing, accept/reject, missed-call
// and reject deadlines, the mid-call renegotiation sub-protocol, and
// terminal bookkeeping (durations, history records).
package calling

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/techstandakmr/callcore/signaling"
)

var (
	// ErrCallInProgress is returned when a new call is initiated while
	// another call is current.
	ErrCallInProgress = errors.New("a call is already in progress")
	// ErrNoCurrentCall is returned by call-control methods with no
	// current call to act on.
	ErrNoCurrentCall = errors.New("no current call")
	// ErrInvalidTransition is returned when a call-control method is
	// invoked from a state its trigger does not apply to.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Transport is the outbound half of the signaling channel the state
// machine drives. signaling.Client satisfies it.
type Transport interface {
	Send(msg *signaling.Message) error
}

// Media is the contract the state machine needs from the negotiation
// engine. MediaEngine satisfies it; tests substitute a fake.
type Media interface {
	CreateOffer() (string, error)
	CreateAnswer(remoteOffer string) (string, error)
	SetRemoteAnswer(sdp string) error
	AddAudioTrack() (*webrtc.TrackLocalStaticRTP, error)
	AddVideoTrack() (*webrtc.TrackLocalStaticRTP, error)
	OnNegotiationNeeded(handler func())
	OnRemoteTrack(handler func(track *webrtc.TrackRemote))
	SetAudioEnabled(enabled bool) bool
	SetVideoEnabled(enabled bool) bool
	Close() error
}

// Session owns the lifecycle of this client's calls. There is at most
// one current call per session; every mutation of the current record
// goes through a transition method here, and inbound frames that do not
// match the current call (stale customID, or a call already terminal)
// are dropped without a state change.
type Session struct {
	mu sync.Mutex

	userID    string
	config    *Config
	transport Transport
	recorder  Recorder

	current   *CallRecord
	direction CallDirection
	media     Media
	deadline  *time.Timer
	timer     *CallTimer
	renegSeq  int

	newMedia func() (Media, error)

	// Emitter surfaces call events to the embedding application.
	Emitter *EventEmitter
}

// NewSession creates a call session for the given user identity. The
// recorder may be nil when no history persistence is wanted.
func NewSession(userID string, transport Transport, recorder Recorder, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Session{
		userID:    userID,
		config:    config,
		transport: transport,
		recorder:  recorder,
		Emitter:   NewEventEmitter(),
	}
	s.timer = NewCallTimer(func(seconds int64) {
		s.Emitter.Emit(string(CallEventTick), seconds)
	})
	s.newMedia = func() (Media, error) {
		return NewMediaEngine(config.MediaConfig)
	}
	return s
}

// Bind subscribes the session to every call-signaling frame delivered
// by the given client.
func (s *Session) Bind(client *signaling.Client) {
	client.On("*", func(msg *signaling.Message) {
		s.HandleMessage(msg)
	})
}

// UserID returns the identity this session acts as.
func (s *Session) UserID() string {
	return s.userID
}

// CurrentCall returns a copy of the current call record, or nil.
func (s *Session) CurrentCall() *CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// ElapsedSeconds returns the call timer's elapsed seconds.
func (s *Session) ElapsedSeconds() int64 {
	return s.timer.Elapsed()
}

// ---- Local triggers ----

// Dial initiates an outbound call. Media acquisition runs before any
// state change: if the engine cannot come up (device denied or
// unavailable) the call never enters "calling" and the error is
// surfaced to the caller, never retried automatically.
func (s *Session) Dial(callee string, callType CallType) (*CallRecord, error) {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrCallInProgress
	}
	s.mu.Unlock()

	media, err := s.newMedia()
	if err != nil {
		s.Emitter.Emit(string(CallEventError), err)
		return nil, fmt.Errorf("media unavailable: %w", err)
	}
	if err := s.addLocalTracks(media, callType); err != nil {
		_ = media.Close()
		s.Emitter.Emit(string(CallEventError), err)
		return nil, fmt.Errorf("media unavailable: %w", err)
	}

	offer, err := media.CreateOffer()
	if err != nil {
		_ = media.Close()
		s.Emitter.Emit(string(CallEventError), err)
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	s.mu.Lock()
	if s.current != nil {
		// A call arrived while the offer was being created; discard ours.
		s.mu.Unlock()
		_ = media.Close()
		return nil, ErrCallInProgress
	}

	now := time.Now()
	rec := &CallRecord{
		CustomID:    uuid.New().String(),
		Caller:      s.userID,
		Callee:      callee,
		CallType:    callType,
		Status:      CallStatusCalling,
		Offer:       offer,
		CallingTime: now,
	}
	s.current = rec
	s.direction = CallDirectionOutbound
	s.media = media
	s.renegSeq = 0
	s.wireMediaLocked(media)
	s.armDeadlineLocked(s.config.MissedCallTimeout, rec.CustomID)

	msg := &signaling.Message{
		Type: signaling.MessageCallInitiate,
		To:   callee,
		CallData: &signaling.CallData{
			CustomID:    rec.CustomID,
			Caller:      rec.Caller,
			Callee:      rec.Callee,
			CallType:    string(rec.CallType),
			Status:      string(rec.Status),
			Offer:       rec.Offer,
			CallingTime: rec.CallingTime,
		},
	}
	clone := rec.Clone()
	s.mu.Unlock()

	if err := s.transport.Send(msg); err != nil {
		log.Printf("calling: failed to send call:initiate: %v", err)
	}
	s.Emitter.Emit(string(CallEventRinging), clone)
	return clone, nil
}

// Accept answers the current incoming call. The answer is produced from
// the stored offer; local tracks attach after AcceptMediaDelay so the
// answer lands before media flows, and the call timer starts then.
func (s *Session) Accept() error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoCurrentCall
	}
	if s.direction != CallDirectionInbound || s.current.Status != CallStatusRinging {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot accept in state %s", ErrInvalidTransition, s.current.Status)
	}
	customID := s.current.CustomID
	offer := s.current.Offer
	callType := s.current.CallType
	caller := s.current.Caller
	s.mu.Unlock()

	media, err := s.newMedia()
	if err != nil {
		s.Emitter.Emit(string(CallEventError), err)
		return fmt.Errorf("media unavailable: %w", err)
	}

	answer, err := media.CreateAnswer(offer)
	if err != nil {
		_ = media.Close()
		s.Emitter.Emit(string(CallEventError), err)
		return fmt.Errorf("failed to create answer: %w", err)
	}

	s.mu.Lock()
	// The call may have been torn down while the answer was produced;
	// a resolution for a stale call must be discarded, not applied.
	if s.current == nil || s.current.CustomID != customID || s.current.Status != CallStatusRinging {
		s.mu.Unlock()
		_ = media.Close()
		return ErrInvalidTransition
	}

	now := time.Now()
	s.current.Status = CallStatusAccepted
	s.current.AnsTime = &now
	s.current.Answer = answer
	s.media = media
	s.renegSeq = 0
	s.wireMediaLocked(media)
	s.cancelDeadlineLocked()

	msg := &signaling.Message{
		Type: signaling.MessageCallAccepted,
		To:   caller,
		CallData: &signaling.CallData{
			CustomID: customID,
			Status:   string(CallStatusAccepted),
			Answer:   answer,
			AnsTime:  &now,
		},
	}
	clone := s.current.Clone()
	s.mu.Unlock()

	if err := s.transport.Send(msg); err != nil {
		log.Printf("calling: failed to send call:accepted: %v", err)
	}
	s.Emitter.Emit(string(CallEventAccepted), clone)

	go s.attachMediaAfterAccept(customID, callType)
	return nil
}

// attachMediaAfterAccept attaches local tracks and starts the timer
// once the post-accept delay elapses, unless the call went away.
func (s *Session) attachMediaAfterAccept(customID string, callType CallType) {
	time.Sleep(s.config.AcceptMediaDelay)

	s.mu.Lock()
	if s.current == nil || s.current.CustomID != customID || s.current.Status != CallStatusAccepted {
		s.mu.Unlock()
		return
	}
	media := s.media
	s.mu.Unlock()

	if err := s.addLocalTracks(media, callType); err != nil {
		log.Printf("calling: failed to attach local tracks: %v", err)
		s.Emitter.Emit(string(CallEventError), err)
		return
	}
	s.timer.Start()
}

// Cancel withdraws an outbound call that has not been accepted; the
// record resolves to missed_call, the same outcome the caller-side
// deadline produces.
func (s *Session) Cancel() error {
	return s.finishPreAccept(CallDirectionOutbound, CallStatusMissed, signaling.MessageCallMissed)
}

// Reject declines the current incoming call.
func (s *Session) Reject() error {
	return s.finishPreAccept(CallDirectionInbound, CallStatusRejected, signaling.MessageCallRejected)
}

// finishPreAccept resolves a not-yet-accepted call to a terminal state.
func (s *Session) finishPreAccept(wantDir CallDirection, status CallStatus, msgType signaling.MessageType) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoCurrentCall
	}
	if s.direction != wantDir ||
		(s.current.Status != CallStatusCalling && s.current.Status != CallStatusRinging) {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot resolve %s in state %s", ErrInvalidTransition, status, s.current.Status)
	}
	msg, clone := s.finalizeLocked(status, msgType, nil)
	s.mu.Unlock()

	s.deliverTerminal(msg, clone)
	return nil
}

// HangUp ends the current accepted call. On a call that has not been
// accepted yet it behaves as Cancel (caller) or Reject (callee).
func (s *Session) HangUp() error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoCurrentCall
	}
	if s.current.Status != CallStatusAccepted {
		dir := s.direction
		s.mu.Unlock()
		if dir == CallDirectionOutbound {
			return s.Cancel()
		}
		return s.Reject()
	}
	msg, clone := s.finalizeLocked(CallStatusEnded, signaling.MessageCallEnded, nil)
	s.mu.Unlock()

	s.deliverTerminal(msg, clone)
	return nil
}

// ToggleAudio flips the local audio state and notifies the peer. The
// notification is fire-and-forget and never changes call status.
func (s *Session) ToggleAudio(enabled bool) error {
	return s.toggleTrack(signaling.MessageCallToggleAudio, enabled)
}

// ToggleVideo flips the local video state and notifies the peer.
func (s *Session) ToggleVideo(enabled bool) error {
	return s.toggleTrack(signaling.MessageCallToggleVideo, enabled)
}

func (s *Session) toggleTrack(msgType signaling.MessageType, enabled bool) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoCurrentCall
	}
	if s.media != nil {
		if msgType == signaling.MessageCallToggleAudio {
			s.media.SetAudioEnabled(enabled)
		} else {
			s.media.SetVideoEnabled(enabled)
		}
	}
	flag := enabled
	msg := &signaling.Message{
		Type: msgType,
		To:   s.peerLocked(),
		CallData: &signaling.CallData{
			CustomID: s.current.CustomID,
			Enabled:  &flag,
		},
	}
	s.mu.Unlock()

	return s.transport.Send(msg)
}

// ---- Inbound frames ----

// HandleMessage feeds one inbound signaling frame into the state
// machine. Frames referencing a customID other than the current call's,
// or a call already terminal, are dropped without a state change.
func (s *Session) HandleMessage(msg *signaling.Message) {
	if msg == nil || msg.CallData == nil {
		return
	}

	switch msg.Type {
	case signaling.MessageCallInitiate, signaling.MessageCalleeActive:
		s.handleIncomingCall(msg)
	case signaling.MessageCallAccepted:
		s.handleAccepted(msg)
	case signaling.MessageCallRejected:
		s.handleRemoteTerminal(msg, CallStatusRejected, CallEventRejected, false)
	case signaling.MessageCallMissed:
		s.handleRemoteTerminal(msg, CallStatusMissed, CallEventMissed, false)
	case signaling.MessageCallEnded:
		s.handleRemoteTerminal(msg, CallStatusEnded, CallEventEnded, true)
	case signaling.MessageBusyOnCall:
		s.handleBusy(msg)
	case signaling.MessageCallRenegotiation:
		s.handleRenegotiationOffer(msg)
	case signaling.MessageCallRenegotiationDone:
		s.handleRenegotiationAnswer(msg)
	case signaling.MessageCallToggleAudio:
		s.handleToggle(msg, CallEventRemoteAudioToggle)
	case signaling.MessageCallToggleVideo:
		s.handleToggle(msg, CallEventRemoteVideoToggle)
	}
}

// handleIncomingCall transitions idle→ringing, or answers busy when a
// call is already current. The active record is never mutated by a
// second inbound call.
func (s *Session) handleIncomingCall(msg *signaling.Message) {
	data := msg.CallData

	s.mu.Lock()
	if s.current != nil {
		if s.current.CustomID == data.CustomID {
			// Duplicate delivery of the initiate frame.
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.answerBusy(data)
		return
	}

	callingTime := data.CallingTime
	if callingTime.IsZero() {
		callingTime = time.Now()
	}
	rec := &CallRecord{
		CustomID:    data.CustomID,
		Caller:      data.Caller,
		Callee:      data.Callee,
		CallType:    CallType(data.CallType),
		Status:      CallStatusRinging,
		Offer:       data.Offer,
		CallingTime: callingTime,
	}
	s.current = rec
	s.direction = CallDirectionInbound
	s.armDeadlineLocked(s.config.RejectTimeout, rec.CustomID)
	clone := rec.Clone()
	s.mu.Unlock()

	s.Emitter.Emit(string(CallEventIncoming), clone)
}

// answerBusy replies busy:on:call for a second incoming call and files
// a separate history entry for it.
func (s *Session) answerBusy(data *signaling.CallData) {
	busy := &signaling.Message{
		Type: signaling.MessageBusyOnCall,
		To:   data.Caller,
		CallData: &signaling.CallData{
			CustomID:     data.CustomID,
			Caller:       data.Caller,
			Callee:       data.Callee,
			Status:       string(CallStatusMissed),
			IsCalleeBusy: true,
		},
	}
	if err := s.transport.Send(busy); err != nil {
		log.Printf("calling: failed to send busy:on:call: %v", err)
	}

	if s.recorder != nil {
		callingTime := data.CallingTime
		if callingTime.IsZero() {
			callingTime = time.Now()
		}
		rec := &CallRecord{
			CustomID:     data.CustomID,
			Caller:       data.Caller,
			Callee:       data.Callee,
			CallType:     CallType(data.CallType),
			Status:       CallStatusMissed,
			CallingTime:  callingTime,
			IsCalleeBusy: true,
		}
		if err := s.recorder.Record(rec); err != nil {
			log.Printf("calling: failed to record busy call: %v", err)
		}
	}
}

// handleAccepted applies the callee's answer on the caller side.
func (s *Session) handleAccepted(msg *signaling.Message) {
	data := msg.CallData

	s.mu.Lock()
	if !s.matchesLocked(data.CustomID) || s.current.Status != CallStatusCalling {
		s.mu.Unlock()
		return
	}

	ansTime := time.Now()
	if data.AnsTime != nil {
		ansTime = *data.AnsTime
	}
	s.current.Status = CallStatusAccepted
	s.current.AnsTime = &ansTime
	s.current.Answer = data.Answer
	s.cancelDeadlineLocked()
	media := s.media
	clone := s.current.Clone()
	s.mu.Unlock()

	if media != nil && data.Answer != "" {
		if err := media.SetRemoteAnswer(data.Answer); err != nil {
			log.Printf("calling: failed to apply remote answer: %v", err)
			s.Emitter.Emit(string(CallEventError), err)
		}
	}

	// Idempotent with any other start path.
	s.timer.Start()
	s.Emitter.Emit(string(CallEventAccepted), clone)
}

// handleRemoteTerminal resolves the current call from a remote terminal
// frame. Pre-accept terminals (rejected, missed) are dropped once the
// call is accepted: whichever signal arrived first has already won.
func (s *Session) handleRemoteTerminal(msg *signaling.Message, status CallStatus, event CallEventKey, afterAccept bool) {
	data := msg.CallData

	s.mu.Lock()
	if !s.matchesLocked(data.CustomID) {
		s.mu.Unlock()
		return
	}
	if afterAccept {
		if s.current.Status != CallStatusAccepted {
			s.mu.Unlock()
			return
		}
	} else {
		if s.current.Status != CallStatusCalling && s.current.Status != CallStatusRinging {
			s.mu.Unlock()
			return
		}
	}

	_, clone := s.finalizeLocked(status, "", data)
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.Record(clone); err != nil {
			log.Printf("calling: failed to record call %s: %v", clone.CustomID, err)
		}
	}
	s.Emitter.Emit(string(event), clone)
}

// handleBusy marks the current outbound call's callee as busy. The
// status is left untouched; the flag is caller-side display only.
func (s *Session) handleBusy(msg *signaling.Message) {
	s.mu.Lock()
	if !s.matchesLocked(msg.CallData.CustomID) {
		s.mu.Unlock()
		return
	}
	s.current.IsCalleeBusy = true
	clone := s.current.Clone()
	s.mu.Unlock()

	s.Emitter.Emit(string(CallEventBusy), clone)
}

// handleRenegotiationOffer answers a mid-call offer from the peer and
// returns it with the roles swapped.
func (s *Session) handleRenegotiationOffer(msg *signaling.Message) {
	data := msg.CallData

	s.mu.Lock()
	if !s.matchesLocked(data.CustomID) || s.current.Status != CallStatusAccepted {
		s.mu.Unlock()
		return
	}
	media := s.media
	peer := s.peerLocked()
	s.mu.Unlock()

	if media == nil {
		return
	}

	answer, err := media.CreateAnswer(data.Offer)
	if err != nil {
		log.Printf("calling: renegotiation answer failed: %v", err)
		return
	}

	// Discard the result if the call moved on while answering.
	s.mu.Lock()
	if !s.matchesLocked(data.CustomID) || s.current.Status != CallStatusAccepted {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	done := &signaling.Message{
		Type: signaling.MessageCallRenegotiationDone,
		To:   peer,
		CallData: &signaling.CallData{
			CustomID:         data.CustomID,
			Answer:           answer,
			LocalPeer:        data.RemotePeer,
			RemotePeer:       data.LocalPeer,
			RenegotiationSeq: data.RenegotiationSeq,
		},
	}
	if err := s.transport.Send(done); err != nil {
		log.Printf("calling: failed to send renegotiation answer: %v", err)
	}
}

// handleRenegotiationAnswer applies the peer's renegotiation answer on
// the initiating side. Answers for any round but the newest are stale
// and dropped so they can never overwrite a newer local description.
func (s *Session) handleRenegotiationAnswer(msg *signaling.Message) {
	data := msg.CallData

	s.mu.Lock()
	if !s.matchesLocked(data.CustomID) || s.current.Status != CallStatusAccepted {
		s.mu.Unlock()
		return
	}
	if data.RenegotiationSeq != s.renegSeq {
		log.Printf("calling: dropping stale renegotiation answer (seq=%d, current=%d)",
			data.RenegotiationSeq, s.renegSeq)
		s.mu.Unlock()
		return
	}
	media := s.media
	s.mu.Unlock()

	if media == nil {
		return
	}
	if err := media.SetRemoteAnswer(data.Answer); err != nil {
		log.Printf("calling: failed to apply renegotiation answer: %v", err)
	}
}

// handleToggle surfaces a remote mute/unmute notification.
func (s *Session) handleToggle(msg *signaling.Message, event CallEventKey) {
	data := msg.CallData

	s.mu.Lock()
	if !s.matchesLocked(data.CustomID) || data.Enabled == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.Emitter.Emit(string(event), *data.Enabled)
}

// ---- Renegotiation (initiating side) ----

// wireMediaLocked installs the media callbacks for the current call.
func (s *Session) wireMediaLocked(media Media) {
	customID := s.current.CustomID

	media.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		s.Emitter.Emit(string(CallEventRemoteMedia), track)
	})
	media.OnNegotiationNeeded(func() {
		s.startRenegotiation(customID)
	})
}

// startRenegotiation begins a new renegotiation round: fresh offer,
// next sequence number, roles tagged from the initiator's view.
func (s *Session) startRenegotiation(customID string) {
	s.mu.Lock()
	if !s.matchesLocked(customID) || s.current.Status != CallStatusAccepted {
		s.mu.Unlock()
		return
	}
	media := s.media
	peer := s.peerLocked()
	s.mu.Unlock()

	if media == nil {
		return
	}

	offer, err := media.CreateOffer()
	if err != nil {
		log.Printf("calling: renegotiation offer failed: %v", err)
		return
	}

	s.mu.Lock()
	if !s.matchesLocked(customID) || s.current.Status != CallStatusAccepted {
		s.mu.Unlock()
		return
	}
	s.renegSeq++
	seq := s.renegSeq
	s.mu.Unlock()

	msg := &signaling.Message{
		Type: signaling.MessageCallRenegotiation,
		To:   peer,
		CallData: &signaling.CallData{
			CustomID:         customID,
			Offer:            offer,
			LocalPeer:        s.userID,
			RemotePeer:       peer,
			RenegotiationSeq: seq,
		},
	}
	if err := s.transport.Send(msg); err != nil {
		log.Printf("calling: failed to send renegotiation offer: %v", err)
	}
}

// ---- Timeout supervisor ----

// armDeadlineLocked arms this side's single supervisor deadline for the
// given call. The caller arms only its missed-call deadline and the
// callee only its reject deadline, so the two timers of one client
// never contend; the cross-client ordering comes from the configured
// offset between the two durations.
func (s *Session) armDeadlineLocked(d time.Duration, customID string) {
	s.cancelDeadlineLocked()
	s.deadline = time.AfterFunc(d, func() {
		s.onDeadline(customID)
	})
}

func (s *Session) cancelDeadlineLocked() {
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
}

// onDeadline resolves an unanswered call when a supervisor deadline
// fires. A deadline racing a just-arrived accept or terminal frame
// finds the state already advanced and becomes a no-op.
func (s *Session) onDeadline(customID string) {
	s.mu.Lock()
	if !s.matchesLocked(customID) ||
		(s.current.Status != CallStatusCalling && s.current.Status != CallStatusRinging) {
		s.mu.Unlock()
		return
	}

	var status CallStatus
	var msgType signaling.MessageType
	if s.direction == CallDirectionOutbound {
		status, msgType = CallStatusMissed, signaling.MessageCallMissed
	} else {
		status, msgType = CallStatusRejected, signaling.MessageCallRejected
	}
	msg, clone := s.finalizeLocked(status, msgType, nil)
	s.mu.Unlock()

	s.deliverTerminal(msg, clone)
}

// ---- Terminal bookkeeping ----

// finalizeLocked moves the current call to a terminal status, computes
// durations, releases media, cancels the deadline, resets the timer and
// clears the current-call reference. When remote carries durations from
// the peer's terminal frame they are preferred, keeping both sides'
// history entries identical. It returns the terminal frame to send (nil
// msgType means the remote already knows) and a clone for history/events.
func (s *Session) finalizeLocked(status CallStatus, msgType signaling.MessageType, remote *signaling.CallData) (*signaling.Message, *CallRecord) {
	rec := s.current
	now := time.Now()

	rec.Status = status
	if status == CallStatusEnded && rec.AnsTime != nil {
		rec.CallDuration = FormatDuration(now.Sub(*rec.AnsTime))
		rec.RingDuration = FormatDuration(rec.AnsTime.Sub(rec.CallingTime))
	} else {
		rec.RingDuration = FormatDuration(now.Sub(rec.CallingTime))
		rec.CallDuration = ""
	}
	if remote != nil {
		if remote.RingDuration != "" {
			rec.RingDuration = remote.RingDuration
		}
		if remote.CallDuration != "" {
			rec.CallDuration = remote.CallDuration
		}
	}
	// Setup payloads are not carried into history.
	rec.Offer = ""
	rec.Answer = ""

	s.cancelDeadlineLocked()
	s.timer.Reset()

	if s.media != nil {
		media := s.media
		s.media = nil
		go func() {
			if err := media.Close(); err != nil {
				log.Printf("calling: media close: %v", err)
			}
		}()
	}

	peer := s.peerLocked()
	s.current = nil
	s.renegSeq = 0

	var msg *signaling.Message
	if msgType != "" {
		msg = &signaling.Message{
			Type: msgType,
			To:   peer,
			CallData: &signaling.CallData{
				CustomID:     rec.CustomID,
				Caller:       rec.Caller,
				Callee:       rec.Callee,
				Status:       string(rec.Status),
				RingDuration: rec.RingDuration,
				CallDuration: rec.CallDuration,
			},
		}
	}
	return msg, rec.Clone()
}

// deliverTerminal sends the terminal frame and files the history entry.
func (s *Session) deliverTerminal(msg *signaling.Message, clone *CallRecord) {
	if msg != nil {
		if err := s.transport.Send(msg); err != nil {
			log.Printf("calling: failed to send %s: %v", msg.Type, err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Record(clone); err != nil {
			log.Printf("calling: failed to record call %s: %v", clone.CustomID, err)
		}
	}
	switch clone.Status {
	case CallStatusEnded:
		s.Emitter.Emit(string(CallEventEnded), clone)
	case CallStatusMissed:
		s.Emitter.Emit(string(CallEventMissed), clone)
	case CallStatusRejected:
		s.Emitter.Emit(string(CallEventRejected), clone)
	}
}

// matchesLocked reports whether the frame's customID addresses the
// current call. Held lock required.
func (s *Session) matchesLocked(customID string) bool {
	return s.current != nil && s.current.CustomID == customID
}

// peerLocked returns the other participant of the current call.
func (s *Session) peerLocked() string {
	if s.current == nil {
		return ""
	}
	if s.current.Caller == s.userID {
		return s.current.Callee
	}
	return s.current.Caller
}

// addLocalTracks attaches the audio track, and the video track for
// video calls, to the given engine.
func (s *Session) addLocalTracks(media Media, callType CallType) error {
	if _, err := media.AddAudioTrack(); err != nil {
		return fmt.Errorf("failed to add audio track: %w", err)
	}
	if callType == CallTypeVideo {
		if _, err := media.AddVideoTrack(); err != nil {
			return fmt.Errorf("failed to add video track: %w", err)
		}
	}
	return nil
}
