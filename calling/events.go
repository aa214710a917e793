/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import "sync"

// CallEventKey identifies the type of call event surfaced to the
// embedding application (the UI layer in the original client).
type CallEventKey string

const (
	// CallEventIncoming fires on the callee when a call starts ringing.
	CallEventIncoming CallEventKey = "incoming"
	// CallEventRinging fires on the caller once the initiate frame is sent.
	CallEventRinging CallEventKey = "ringing"
	// CallEventAccepted fires on both sides when the call connects.
	CallEventAccepted CallEventKey = "accepted"
	// CallEventEnded fires after a hang-up of an accepted call.
	CallEventEnded CallEventKey = "ended"
	// CallEventMissed fires on the caller side after the missed-call deadline.
	CallEventMissed CallEventKey = "missed"
	// CallEventRejected fires when the callee (or its deadline) rejects.
	CallEventRejected CallEventKey = "rejected"
	// CallEventBusy fires on the caller when the callee is on another call.
	CallEventBusy CallEventKey = "busy"
	// CallEventRemoteMedia fires when a remote track arrives.
	CallEventRemoteMedia CallEventKey = "remote_media"
	// CallEventRemoteAudioToggle carries the peer's new audio-enabled state.
	CallEventRemoteAudioToggle CallEventKey = "remote_audio_toggle"
	// CallEventRemoteVideoToggle carries the peer's new video-enabled state.
	CallEventRemoteVideoToggle CallEventKey = "remote_video_toggle"
	// CallEventTick carries the elapsed seconds of an accepted call.
	CallEventTick CallEventKey = "tick"
	// CallEventError carries a hard local failure (media acquisition etc.).
	CallEventError CallEventKey = "call_error"
)

// EventHandler is a callback function for events
type EventHandler func(data interface{})

// EventEmitter provides a simple event pub/sub system
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewEventEmitter creates a new EventEmitter
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[string][]EventHandler),
	}
}

// On registers an event handler for a specific event type
func (e *EventEmitter) On(event string, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Off removes all handlers for a specific event type
func (e *EventEmitter) Off(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Emit fires an event, calling all registered handlers
func (e *EventEmitter) Emit(event string, data interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
