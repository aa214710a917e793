/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"sync"
	"time"
)

// CallTimer counts elapsed whole seconds of an accepted call. Start is
// idempotent: the local accept path and a delayed remote-accepted frame
// can both try to start it, and only the first attempt takes effect.
type CallTimer struct {
	mu      sync.Mutex
	running bool
	elapsed int64
	stopCh  chan struct{}
	onTick  func(seconds int64)
}

// NewCallTimer creates a stopped timer. onTick, if non-nil, is invoked
// once per elapsed second from the timer's goroutine.
func NewCallTimer(onTick func(seconds int64)) *CallTimer {
	return &CallTimer{onTick: onTick}
}

// Start begins counting. Calling Start on a running timer is a no-op,
// so overlapping accept paths never double-count.
func (t *CallTimer) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	go t.run(stopCh)
}

func (t *CallTimer) run(stopCh chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			t.elapsed++
			elapsed := t.elapsed
			onTick := t.onTick
			t.mu.Unlock()
			if onTick != nil {
				onTick(elapsed)
			}
		case <-stopCh:
			return
		}
	}
}

// Pause stops counting without clearing the elapsed value.
func (t *CallTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Reset stops counting and clears the elapsed value.
func (t *CallTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.elapsed = 0
}

func (t *CallTimer) stopLocked() {
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.stopCh = nil
}

// Running reports whether the timer is counting.
func (t *CallTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Elapsed returns the whole seconds counted so far.
func (t *CallTimer) Elapsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}
