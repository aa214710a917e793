/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import "time"

// Config holds the tunables of the call state machine.
//
// The two deadlines are deliberately asymmetric: the caller resolves a
// missed call before the callee resolves a reject, so the caller's
// terminal frame arrives first and the two clients never emit
// conflicting terminal signals for the same call. Correctness of that
// ordering assumes clock skew between clients is much smaller than the
// offset between the two values.
type Config struct {
	// MissedCallTimeout is the caller-side deadline: a call still not
	// accepted this long after entering "calling" resolves to missed.
	MissedCallTimeout time.Duration
	// RejectTimeout is the callee-side deadline; it must exceed
	// MissedCallTimeout (see above).
	RejectTimeout time.Duration
	// AcceptMediaDelay is the pause between sending call:accepted and
	// attaching local tracks / starting the call timer, giving the
	// answer time to land before media flows.
	AcceptMediaDelay time.Duration
	// MediaConfig configures the WebRTC engine for each call.
	MediaConfig *MediaConfig
}

// DefaultConfig returns the default call configuration.
func DefaultConfig() *Config {
	return &Config{
		MissedCallTimeout: 29 * time.Second,
		RejectTimeout:     31 * time.Second,
		AcceptMediaDelay:  1 * time.Second,
	}
}
