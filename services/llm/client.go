// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides streaming clients for the supported completion
// providers behind one uniform contract.
//
// Providers differ in wire protocol (Anthropic's native Messages API versus
// the OpenAI-compatible family) but expose the same ChatStream method: given
// a system prompt and ordered messages, deliver text deltas to a callback in
// generation order. Resolution between providers happens once at startup in
// ResolveClient; the pipeline never branches on provider identity.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// =============================================================================
// Streaming Contract
// =============================================================================

// StreamEventType discriminates streaming callback events.
type StreamEventType int

const (
	// StreamEventToken carries one text delta in Content.
	StreamEventToken StreamEventType = iota

	// StreamEventError carries a provider-reported mid-stream error.
	StreamEventError
)

// StreamEvent is one unit delivered to a StreamCallback.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback receives stream events in generation order. Returning a
// non-nil error aborts the stream (used on client disconnect).
type StreamCallback func(event StreamEvent) error

// GenerationParams are optional sampling overrides. Nil fields use provider
// defaults.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
}

// LLMClient is the uniform contract every provider implements.
type LLMClient interface {
	// Name identifies the provider (anthropic, openai, groq, local) for
	// logs and analytics.
	Name() string

	// ChatStream sends the system prompt and messages and forwards each
	// text delta to callback. It returns when the stream completes, the
	// context is canceled, the callback aborts, or the provider fails.
	// Provider failures are returned as *ProviderError. No retries.
	ChatStream(ctx context.Context, system string, messages []datatypes.Message,
		params GenerationParams, callback StreamCallback) error
}

// =============================================================================
// Typed Provider Error
// =============================================================================

// ProviderError wraps an initialization or call failure with the provider
// name so the caller can degrade gracefully without parsing error text.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
