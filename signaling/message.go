/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of call-signaling message on the wire.
type MessageType string

const (
	// MessageCallInitiate is sent caller→callee to start ringing.
	MessageCallInitiate MessageType = "call:initiate"
	// MessageCalleeActive is the relay's delivery alias for call:initiate.
	MessageCalleeActive MessageType = "callee:active"
	// MessageCallAccepted delivers the SDP answer callee→caller.
	MessageCallAccepted MessageType = "call:accepted"
	// MessageCallRenegotiation delivers a fresh offer mid-call (either direction).
	MessageCallRenegotiation MessageType = "call:renegotiation"
	// MessageCallRenegotiationDone delivers the renegotiation answer back.
	MessageCallRenegotiationDone MessageType = "call:renegotiation:done"
	// MessageCallToggleAudio notifies the peer of a local mute/unmute.
	MessageCallToggleAudio MessageType = "call:toggleAudio"
	// MessageCallToggleVideo notifies the peer of a local camera on/off.
	MessageCallToggleVideo MessageType = "call:toggleVideo"
	// MessageCallRejected is sent callee→caller on explicit or timeout reject.
	MessageCallRejected MessageType = "call:rejected"
	// MessageCallMissed is sent caller→callee when the caller-side deadline fires.
	MessageCallMissed MessageType = "call:missed"
	// MessageCallEnded is the hang-up after an accepted call (either direction).
	MessageCallEnded MessageType = "call:ended"
	// MessageBusyOnCall tells the caller the callee is already on another call.
	MessageBusyOnCall MessageType = "busy:on:call"
)

// knownTypes is the closed set of message kinds the transport accepts.
var knownTypes = map[MessageType]struct{}{
	MessageCallInitiate:          {},
	MessageCalleeActive:          {},
	MessageCallAccepted:          {},
	MessageCallRenegotiation:     {},
	MessageCallRenegotiationDone: {},
	MessageCallToggleAudio:       {},
	MessageCallToggleVideo:       {},
	MessageCallRejected:          {},
	MessageCallMissed:            {},
	MessageCallEnded:             {},
	MessageBusyOnCall:            {},
}

// IsKnown reports whether t is one of the defined message types.
func (t MessageType) IsKnown() bool {
	_, ok := knownTypes[t]
	return ok
}

// CallData is the payload carried by every call-signaling message.
// CustomID is mandatory on all messages; the remaining fields are
// populated per message type (offer on initiate, answer on accepted,
// durations and status on terminal messages, and so on).
type CallData struct {
	CustomID    string     `json:"customID"`
	Caller      string     `json:"caller,omitempty"`
	Callee      string     `json:"callee,omitempty"`
	CallType    string     `json:"callType,omitempty"`
	Status      string     `json:"status,omitempty"`
	Offer       string     `json:"offer,omitempty"`
	Answer      string     `json:"answer,omitempty"`
	CallingTime time.Time  `json:"callingTime,omitzero"`
	AnsTime     *time.Time `json:"ansTime,omitempty"`

	// Computed durations, present only on terminal messages.
	RingDuration string `json:"ringDuration,omitempty"`
	CallDuration string `json:"callDuration,omitempty"`

	IsCalleeBusy   bool     `json:"isCalleeBusy,omitempty"`
	DeletedByUsers []string `json:"deletedByUsers,omitempty"`

	// Renegotiation round routing: LocalPeer is the side that produced
	// this offer/answer, RemotePeer the side it is addressed to. The
	// answer comes back with the roles swapped.
	LocalPeer  string `json:"localPeer,omitempty"`
	RemotePeer string `json:"remotePeer,omitempty"`
	// RenegotiationSeq orders renegotiation rounds so a stale answer
	// can never overwrite a newer local description.
	RenegotiationSeq int `json:"renegotiationSeq,omitempty"`

	// Enabled carries the new track state for toggle notifications.
	Enabled *bool `json:"enabled,omitempty"`
}

// Message is one typed signaling frame exchanged over the relay.
type Message struct {
	Type     MessageType `json:"type"`
	CallData *CallData   `json:"callData,omitempty"`

	// To addresses the frame to a specific peer; the relay routes on it
	// and strips it before delivery is observed by the far side's handlers.
	To string `json:"to,omitempty"`
	// From is stamped by the relay with the authenticated sender.
	From string `json:"from,omitempty"`
}

// ValidationError describes a frame rejected at the transport boundary.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid signaling message: " + e.Reason
}

// Validate checks a frame against the fixed schema before it is allowed
// to reach the call state machine. Unknown types and frames without a
// call identifier are rejected here, not deeper in.
func (m *Message) Validate() error {
	if m == nil {
		return &ValidationError{Reason: "nil message"}
	}
	if !m.Type.IsKnown() {
		return &ValidationError{Reason: fmt.Sprintf("unknown type %q", m.Type)}
	}
	if m.CallData == nil {
		return &ValidationError{Reason: "missing callData"}
	}
	if m.CallData.CustomID == "" {
		return &ValidationError{Reason: "missing callData.customID"}
	}
	switch m.Type {
	case MessageCallInitiate, MessageCalleeActive:
		if m.CallData.Offer == "" {
			return &ValidationError{Reason: "call:initiate requires an offer"}
		}
		if m.CallData.Caller == "" || m.CallData.Callee == "" {
			return &ValidationError{Reason: "call:initiate requires caller and callee"}
		}
	case MessageCallAccepted:
		if m.CallData.Answer == "" {
			return &ValidationError{Reason: "call:accepted requires an answer"}
		}
	case MessageCallRenegotiation:
		if m.CallData.Offer == "" {
			return &ValidationError{Reason: "call:renegotiation requires an offer"}
		}
	case MessageCallRenegotiationDone:
		if m.CallData.Answer == "" {
			return &ValidationError{Reason: "call:renegotiation:done requires an answer"}
		}
	case MessageCallToggleAudio, MessageCallToggleVideo:
		if m.CallData.Enabled == nil {
			return &ValidationError{Reason: "toggle requires enabled flag"}
		}
	}
	return nil
}

// ParseMessage decodes and validates a raw frame from the wire.
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON: " + err.Error()}
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
