// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements fixed-window admission control keyed by
// client identity.
//
// The key→window map is the only shared mutable state in the service. It is
// process-local: a multi-instance deployment needs an external shared store
// (e.g. a key-value cache) for limits to hold globally. Windows expire by
// wall-clock comparison on the next check; there is no background sweep, so
// the map grows with the number of distinct keys seen inside a window.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	// Window is the fixed rate-limit window.
	Window = 60 * time.Second

	// Limit is the number of requests allowed per key per window.
	Limit = 10
)

// windowState tracks one key's current window.
type windowState struct {
	count       int
	windowStart time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is the time until the window resets. Set only on denial.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the denial wait rounded up to whole seconds,
// minimum 1, for human-readable refusal messages.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter is a fixed-window rate limiter.
//
// # Thread Safety
//
// Safe for concurrent use; the check-and-increment runs under a mutex.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*windowState
	now     func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*windowState),
		now:     time.Now,
	}
}

// Check performs the check-and-increment for one inbound request.
//
// # Description
//
// If the key has no window or its window has aged out, a fresh window is
// started with count 1 and the request is allowed. If the window is full the
// request is denied with the time remaining until reset. Otherwise the count
// is incremented and the request is allowed.
//
// Check mutates state: call it exactly once per inbound request.
//
// # Inputs
//
//   - key: Client identity key from middleware.ResolveClientIdentity.
//
// # Outputs
//
//   - Decision: Allowed, or denied with RetryAfter > 0.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.windows[key]
	if !ok || now.Sub(state.windowStart) >= Window {
		l.windows[key] = &windowState{count: 1, windowStart: now}
		return Decision{Allowed: true}
	}

	if state.count >= Limit {
		return Decision{
			Allowed:    false,
			RetryAfter: Window - now.Sub(state.windowStart),
		}
	}

	state.count++
	return Decision{Allowed: true}
}
