/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"fmt"
	"time"
)

// ---- Enums / Constants ----

// CallType indicates the media kind of a call
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallStatus is the state-machine discriminant for a call record
type CallStatus string

const (
	CallStatusCalling  CallStatus = "calling"
	CallStatusRinging  CallStatus = "ringing"
	CallStatusAccepted CallStatus = "accepted"
	CallStatusMissed   CallStatus = "missed_call"
	CallStatusRejected CallStatus = "rejected"
	CallStatusEnded    CallStatus = "ended"
)

// Terminal reports whether the status is a terminal outcome. Once a
// record reaches a terminal status it is immutable except for hiding.
func (s CallStatus) Terminal() bool {
	return s == CallStatusMissed || s == CallStatusRejected || s == CallStatusEnded
}

// CallDirection indicates which side of the call this client is
type CallDirection string

const (
	CallDirectionOutbound CallDirection = "outbound"
	CallDirectionInbound  CallDirection = "inbound"
)

// ---- Call Record ----

// CallRecord is the single call entity shared between the two
// participants' state machines and the persisted history. CustomID is
// generated at initiation and is the key every later signaling message
// about this call is matched on.
type CallRecord struct {
	CustomID    string     `json:"customID"`
	Caller      string     `json:"caller"`
	Callee      string     `json:"callee"`
	CallType    CallType   `json:"callType"`
	Status      CallStatus `json:"status"`
	Offer       string     `json:"offer,omitempty"`
	Answer      string     `json:"answer,omitempty"`
	CallingTime time.Time  `json:"callingTime"`
	AnsTime     *time.Time `json:"ansTime,omitempty"`

	// Set only at the terminal transition.
	RingDuration string `json:"ringDuration,omitempty"`
	CallDuration string `json:"callDuration,omitempty"`

	IsCalleeBusy   bool     `json:"isCalleeBusy,omitempty"`
	DeletedByUsers []string `json:"deletedByUsers,omitempty"`
}

// Clone returns a deep copy of the record. History recorders receive
// clones so the live record can never be mutated through the store.
func (r *CallRecord) Clone() *CallRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.AnsTime != nil {
		t := *r.AnsTime
		out.AnsTime = &t
	}
	if r.DeletedByUsers != nil {
		out.DeletedByUsers = append([]string(nil), r.DeletedByUsers...)
	}
	return &out
}

// HiddenFor reports whether the given user has hidden this record locally.
func (r *CallRecord) HiddenFor(userID string) bool {
	for _, u := range r.DeletedByUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// FormatDuration renders an elapsed duration as "MM:SS", rolling over
// to "HH:MM:SS" from one hour. Negative durations clamp to zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ---- Boundaries ----

// Recorder persists terminal call outcomes for call logs and chat
// timelines. callhistory.Store satisfies it.
type Recorder interface {
	// Record inserts or replaces the history entry for rec.CustomID.
	Record(rec *CallRecord) error
}
