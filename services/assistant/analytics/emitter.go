// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analytics emits best-effort telemetry for completed chat requests.
//
// Emission never blocks the response path and never fails a request: events
// go through a bounded channel drained by a single goroutine, and are
// dropped (with a counter in the logs) when the buffer is full.
package analytics

import (
	"sync"
	"sync/atomic"

	"github.com/skillgate-io/skillgate-docs/pkg/logging"
	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// Event is one completed-request record.
type Event struct {
	RequestID      string
	Outcome        datatypes.Outcome
	RefusalReason  datatypes.RefusalReason
	LatencyMs      int64
	GroundingCount int
	Provider       string
}

// defaultBufferSize bounds the in-flight event queue. Sized for bursts; a
// full buffer means the drain goroutine is stalled and dropping is the
// correct behavior.
const defaultBufferSize = 256

// Emitter is the process-wide analytics sink.
type Emitter struct {
	logger  *logging.Logger
	events  chan Event
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewEmitter starts an emitter and its drain goroutine.
func NewEmitter(logger *logging.Logger) *Emitter {
	e := &Emitter{
		logger: logger.With("component", "analytics"),
		events: make(chan Event, defaultBufferSize),
		done:   make(chan struct{}),
	}
	go e.drain()
	return e
}

// Emit enqueues an event. Never blocks: if the buffer is full the event is
// dropped and counted. Safe to call after Close (the event is dropped).
func (e *Emitter) Emit(event Event) {
	select {
	case <-e.done:
		e.dropped.Add(1)
	default:
		select {
		case e.events <- event:
		default:
			e.dropped.Add(1)
		}
	}
}

// Close stops the drain goroutine after flushing queued events. Idempotent.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
}

// Dropped reports how many events were discarded due to a full buffer.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

func (e *Emitter) drain() {
	for {
		select {
		case event := <-e.events:
			e.log(event)
		case <-e.done:
			// Flush whatever is already queued, then stop.
			for {
				select {
				case event := <-e.events:
					e.log(event)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) log(event Event) {
	e.logger.Info("chat request completed",
		"request_id", event.RequestID,
		"outcome", string(event.Outcome),
		"refusal_reason", string(event.RefusalReason),
		"latency_ms", event.LatencyMs,
		"grounding_count", event.GroundingCount,
		"provider", event.Provider,
	)
}
