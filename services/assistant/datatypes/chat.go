// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request, response, and wire types shared by
// the assistant pipeline.
package datatypes

import "github.com/go-playground/validator/v10"

// chatValidate is the shared validator for request types. Validator instances
// cache struct metadata, so one per package.
var chatValidate = validator.New()

// =============================================================================
// Request Types
// =============================================================================

// ResponseStyle selects how the assistant formats its answer.
type ResponseStyle string

const (
	// StyleConcise answers in a short paragraph. Default.
	StyleConcise ResponseStyle = "concise"

	// StyleSteps answers as a numbered list of steps.
	StyleSteps ResponseStyle = "steps"

	// StyleExample answers with a worked example (command or config snippet).
	StyleExample ResponseStyle = "example"
)

// ConversationTurn is a single prior exchange message supplied by the client.
//
// Turns are immutable once received. The client is responsible for bounding
// history; the server additionally caps it at MaxHistoryTurns.
type ConversationTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=8192"`
}

// MaxHistoryTurns is the maximum number of prior turns forwarded to the LLM.
const MaxHistoryTurns = 6

// ChatRequest is the body of POST /api/chat.
//
// # Fields
//
//   - Message: The user's question. The minimum length is enforced by the
//     handler rather than a validation tag so the failure maps to an
//     off_topic refusal rather than a malformed-body error.
//   - History: Prior conversation turns, newest last.
//   - ResponseStyle: Optional formatting directive. Defaults to concise.
type ChatRequest struct {
	Message       string             `json:"message" validate:"max=4096"`
	History       []ConversationTurn `json:"history" validate:"omitempty,max=50,dive"`
	ResponseStyle ResponseStyle      `json:"responseStyle" validate:"omitempty,oneof=concise steps example"`
}

// Validate checks the request against its validation tags. Call after
// binding the JSON body; a failure maps to the error outcome, not a refusal.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Outcome Taxonomy
// =============================================================================

// Outcome classifies how a request terminated. Exactly one outcome is
// attached to every terminal frame.
type Outcome string

const (
	// OutcomeAnswered means the generator produced a grounded answer.
	OutcomeAnswered Outcome = "answered"

	// OutcomeRefused means the question was legitimate but unanswerable
	// (off topic, ungrounded, or rate limited). Refusals may explain why.
	OutcomeRefused Outcome = "refused"

	// OutcomeBlocked means adversarial intent was detected. Blocked
	// responses never disclose which detection fired.
	OutcomeBlocked Outcome = "blocked"

	// OutcomeError means an infrastructure or provider failure.
	OutcomeError Outcome = "error"
)

// RefusalReason narrows a refused or blocked outcome.
type RefusalReason string

const (
	ReasonPromptInjection  RefusalReason = "prompt_injection"
	ReasonJailbreakAttempt RefusalReason = "jailbreak_attempt"
	ReasonDataExfiltration RefusalReason = "data_exfiltration"
	ReasonUnsafeRequest    RefusalReason = "unsafe_request"
	ReasonOffTopic         RefusalReason = "off_topic"
	ReasonNoRelevantDocs   RefusalReason = "no_relevant_docs"
	ReasonRateLimited      RefusalReason = "rate_limited"
)

// IsSecurityReason reports whether a refusal reason belongs to the security
// class. Security-class reasons map to OutcomeBlocked and their responses
// carry a generic message that withholds detection detail.
func IsSecurityReason(r RefusalReason) bool {
	switch r {
	case ReasonPromptInjection, ReasonJailbreakAttempt, ReasonDataExfiltration, ReasonUnsafeRequest:
		return true
	}
	return false
}

// =============================================================================
// Response Metadata
// =============================================================================

// ChatCitation is the client-facing projection of one retrieval result,
// derived 1:1 at response time.
type ChatCitation struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Anchor    string  `json:"anchor,omitempty"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	IndexedAt string  `json:"indexedAt"`
	Relevance string  `json:"relevance"`
}

// MaxSnippetLength bounds citation snippets on the wire.
const MaxSnippetLength = 180

// RelevanceBand maps a retrieval score to the coarse relevance label shown
// next to a citation.
func RelevanceBand(score float64) string {
	switch {
	case score >= 0.5:
		return "high"
	case score >= 0.25:
		return "medium"
	default:
		return "low"
	}
}

// ChatTrust is the audit metadata attached to every terminal done frame.
//
// GroundingCount always equals the number of citations on an answered
// outcome. PolicyChecks lists the screening stages that ran for this request.
type ChatTrust struct {
	GroundingCount int      `json:"groundingCount"`
	ChunkCount     int      `json:"chunkCount"`
	PolicyChecks   []string `json:"policyChecks"`
}

// =============================================================================
// Wire Protocol
// =============================================================================

// Event type strings used on the SSE wire.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is one SSE data frame. The Type field is the discriminator:
//
//   - "token": Content is set.
//   - "done":  Answer, Citations, Trust, Outcome (and RefusalReason when the
//     outcome is refused or blocked) are set.
//   - "error": Error and Outcome ("error") are set.
//
// Frames are serialized as `data: <json>\n\n` with no event: line; the
// client switches on Type.
type StreamEvent struct {
	Type          string         `json:"type"`
	Content       string         `json:"content,omitempty"`
	Answer        string         `json:"answer,omitempty"`
	Citations     []ChatCitation `json:"citations,omitempty"`
	Trust         *ChatTrust     `json:"trust,omitempty"`
	Outcome       Outcome        `json:"outcome,omitempty"`
	RefusalReason RefusalReason  `json:"refusalReason,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Message is the provider-neutral chat message passed to LLM clients.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
