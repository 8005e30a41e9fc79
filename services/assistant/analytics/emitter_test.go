// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"testing"

	"github.com/skillgate-io/skillgate-docs/pkg/logging"
	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

func TestEmitterNeverBlocks(t *testing.T) {
	e := NewEmitter(logging.Default())
	defer e.Close()

	// Flood well past the buffer; every call must return promptly.
	for i := 0; i < defaultBufferSize*4; i++ {
		e.Emit(Event{RequestID: "req", Outcome: datatypes.OutcomeAnswered})
	}
}

func TestEmitterAfterClose(t *testing.T) {
	e := NewEmitter(logging.Default())
	e.Close()
	e.Close() // idempotent

	e.Emit(Event{RequestID: "req", Outcome: datatypes.OutcomeRefused})
	if e.Dropped() == 0 {
		t.Error("expected the post-close event to count as dropped")
	}
}
