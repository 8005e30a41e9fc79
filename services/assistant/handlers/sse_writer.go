// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes the assistant's wire protocol onto an HTTP response.
//
// # Description
//
// Frames are `data: <json>\n\n` with no event: line; the client switches on
// the JSON type field. The writer enforces the protocol's core invariant:
// exactly one terminal frame (done or error) per stream. Terminal writes
// after the first, and token writes after a terminal, are silently dropped.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the heartbeat or an
// abort path may write concurrently with the token loop.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write.
type SSEWriter interface {
	// WriteToken writes one token frame. No-op after a terminal frame.
	WriteToken(content string) error

	// WriteDone writes the terminal done frame for the answered, refused,
	// and blocked paths. Only the first terminal write wins.
	WriteDone(event datatypes.StreamEvent) error

	// WriteError writes the terminal error frame. Only the first terminal
	// write wins. The message must already be sanitized for clients.
	WriteError(message string) error

	// Terminated reports whether a terminal frame has been written.
	Terminated() bool
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
type sseWriter struct {
	writer     http.ResponseWriter
	flusher    http.Flusher
	mu         sync.Mutex
	terminated bool
}

// NewSSEWriter wraps a ResponseWriter for SSE output.
//
// Returns an error if the ResponseWriter does not support http.Flusher;
// without flushing, frames would sit in a buffer and streaming would be
// indistinguishable from a blocking response.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteToken(content string) error {
	return w.writeFrame(datatypes.StreamEvent{
		Type:    datatypes.EventToken,
		Content: content,
	}, false)
}

func (w *sseWriter) WriteDone(event datatypes.StreamEvent) error {
	event.Type = datatypes.EventDone
	return w.writeFrame(event, true)
}

func (w *sseWriter) WriteError(message string) error {
	return w.writeFrame(datatypes.StreamEvent{
		Type:    datatypes.EventError,
		Error:   message,
		Outcome: datatypes.OutcomeError,
	}, true)
}

func (w *sseWriter) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

// writeFrame serializes and flushes one frame under the lock, enforcing the
// single-terminal invariant.
func (w *sseWriter) writeFrame(event datatypes.StreamEvent, terminal bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminated {
		return nil
	}
	if terminal {
		w.terminated = true
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures the response headers for SSE streaming.
//
// Must be called before the first write. X-Accel-Buffering disables
// buffering in nginx-style streaming proxies; no-transform keeps
// intermediaries from re-chunking frames.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
