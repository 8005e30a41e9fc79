// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the docs assistant: the
// streaming chat endpoint and its SSE wire protocol.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillgate-io/skillgate-docs/pkg/logging"
	"github.com/skillgate-io/skillgate-docs/services/assistant/analytics"
	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
	"github.com/skillgate-io/skillgate-docs/services/assistant/middleware"
	"github.com/skillgate-io/skillgate-docs/services/assistant/observability"
	"github.com/skillgate-io/skillgate-docs/services/assistant/ratelimit"
	"github.com/skillgate-io/skillgate-docs/services/guardrails"
	"github.com/skillgate-io/skillgate-docs/services/llm"
	"github.com/skillgate-io/skillgate-docs/services/retrieval"
)

// minMessageLength is the shortest trimmed message worth processing. Anything
// shorter ("hi", "?") cannot be grounded and is refused as off topic.
const minMessageLength = 3

// Client-facing refusal and error messages. Security blocks share one generic
// message that never names the detection that fired.
const (
	msgBlocked = "I can't help with that. I answer questions about SkillGate and its documentation."

	msgOffTopic = "That looks like it's outside what I can help with. I answer questions " +
		"about SkillGate: scanning, rules, configuration, and CI integration."

	msgNoRelevantDocs = "I couldn't find anything in the SkillGate documentation that answers that. " +
		"Try rephrasing with the command or feature name, or use the documentation search."

	msgProviderFailure = "The assistant is temporarily unavailable. Please try again in a moment, " +
		"or use the documentation search."

	msgInvalidBody = "The request body is not a valid chat request."
)

// =============================================================================
// Handler
// =============================================================================

// ChatHandler owns the chat pipeline: admission, screening, retrieval,
// generation, and the SSE response.
//
// All dependencies are read-only or internally synchronized after
// construction, so a single ChatHandler serves all requests.
type ChatHandler struct {
	logger    *logging.Logger
	limiter   *ratelimit.Limiter
	corpus    *retrieval.Corpus
	guard     *guardrails.Engine
	client    llm.LLMClient
	analytics *analytics.Emitter
	tracer    trace.Tracer
}

// NewChatHandler wires the pipeline stages into a handler.
func NewChatHandler(logger *logging.Logger, limiter *ratelimit.Limiter,
	corpus *retrieval.Corpus, guard *guardrails.Engine, client llm.LLMClient,
	emitter *analytics.Emitter) *ChatHandler {

	return &ChatHandler{
		logger:    logger.With("component", "chat_handler"),
		limiter:   limiter,
		corpus:    corpus,
		guard:     guard,
		client:    client,
		analytics: emitter,
		tracer:    otel.Tracer("skillgate.assistant"),
	}
}

// requestState carries per-request bookkeeping across the pipeline stages so
// the terminal paths can record metrics and analytics uniformly.
type requestState struct {
	requestID string
	start     time.Time
	writer    SSEWriter
	grounding int
}

// HandleChat serves POST /api/chat.
//
// # Description
//
// Runs the full pipeline over an SSE stream: resolve client identity, check
// the rate limit, validate the body, screen for adversarial intent, retrieve
// and sanitize evidence, assemble the constrained prompt, and stream the
// generation. Every request ends with exactly one terminal frame (done or
// error) over HTTP 200; protocol-level status codes are never used for
// pipeline outcomes because the stream is already open when most of them are
// decided.
//
// # Limitations
//
//   - No mid-stream heartbeat; idle proxies with short read timeouts may cut
//     long generations.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	state := &requestState{
		requestID: uuid.New().String(),
		start:     time.Now(),
	}
	logger := h.logger.With("request_id", state.requestID)

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		// No flusher means no streaming at all; this is the one failure that
		// surfaces as a plain HTTP error.
		logger.Error("streaming unsupported", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	state.writer = writer
	c.Status(http.StatusOK)

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted()
		defer m.StreamEnded()
	}

	// Panics inside the pipeline must not leak stack detail to the client and
	// must still produce the terminal frame.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in chat pipeline", "panic", fmt.Sprintf("%v", r))
			h.terminateError(state, msgProviderFailure)
		}
	}()

	ctx, span := h.tracer.Start(c.Request.Context(), "assistant.chat",
		trace.WithAttributes(attribute.String("request.id", state.requestID)))
	defer span.End()

	// ---- Admission -------------------------------------------------------

	clientKey := middleware.ResolveClientIdentity(c.Request)
	decision := h.limiter.Check(clientKey)
	if !decision.Allowed {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRateLimitDenied()
		}
		logger.Info("rate limit denied", "retry_after_s", decision.RetryAfterSeconds())
		h.terminateRefusal(state, datatypes.ReasonRateLimited,
			fmt.Sprintf("You've hit the request limit. Try again in %d seconds.",
				decision.RetryAfterSeconds()))
		return
	}

	// ---- Validation ------------------------------------------------------

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Info("malformed request body", "error", err)
		h.terminateError(state, msgInvalidBody)
		return
	}
	if err := req.Validate(); err != nil {
		logger.Info("invalid request body", "error", err)
		h.terminateError(state, msgInvalidBody)
		return
	}

	message := strings.TrimSpace(req.Message)
	if len(message) < minMessageLength {
		h.terminateRefusal(state, datatypes.ReasonOffTopic, msgOffTopic)
		return
	}

	// ---- Guardrail screen ------------------------------------------------

	if result := h.guard.Screen(message); result.Blocked {
		// Log the category for operators; the client gets the generic block.
		logger.Info("message blocked", "reason", string(result.Reason))
		h.terminateBlocked(state, result.Reason)
		return
	}

	// ---- Retrieval -------------------------------------------------------

	_, retrSpan := h.tracer.Start(ctx, "assistant.retrieve")
	results := h.corpus.Retrieve(message)
	retrSpan.SetAttributes(attribute.Int("retrieval.results", len(results)))
	retrSpan.End()

	if len(results) < retrieval.MinGroundingChunks {
		reason := datatypes.ReasonNoRelevantDocs
		refusal := msgNoRelevantDocs
		if h.guard.IsOffTopic(message) {
			reason = datatypes.ReasonOffTopic
			refusal = msgOffTopic
		}
		logger.Info("retrieval refused", "reason", string(reason), "message_len", len(message))
		h.terminateRefusal(state, reason, refusal)
		return
	}
	state.grounding = len(results)

	sanitized := make([]string, len(results))
	for i, res := range results {
		sanitized[i] = h.guard.SanitizeChunk(res.Chunk.Content)
	}

	// ---- Generation ------------------------------------------------------

	system := buildSystemPrompt(results, sanitized, req.ResponseStyle)
	messages := buildMessages(req.History, message)
	citations := buildCitations(results, sanitized)

	genCtx, genSpan := h.tracer.Start(ctx, "assistant.generate",
		trace.WithAttributes(attribute.String("llm.provider", h.client.Name())))
	defer genSpan.End()

	var answer strings.Builder
	tokenCount := 0
	streamErr := h.client.ChatStream(genCtx, system, messages, llm.GenerationParams{},
		func(event llm.StreamEvent) error {
			switch event.Type {
			case llm.StreamEventToken:
				answer.WriteString(event.Content)
				tokenCount++
				return writer.WriteToken(event.Content)
			case llm.StreamEventError:
				return fmt.Errorf("provider stream error: %s", event.Error)
			}
			return nil
		})

	if m := observability.DefaultMetrics; m != nil {
		m.AddTokens(tokenCount)
	}

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			// Client disconnected; nobody is listening for a terminal frame.
			logger.Info("client disconnected mid-stream", "tokens", tokenCount)
			h.record(state, datatypes.OutcomeError, "")
			return
		}
		provider := h.client.Name()
		if pe, ok := llm.AsProviderError(streamErr); ok {
			provider = pe.Provider
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordProviderError(provider)
		}
		logger.Error("generation failed", "provider", provider, "error", streamErr)
		h.terminateError(state, msgProviderFailure)
		return
	}

	// ---- Terminal done ---------------------------------------------------

	trust := &datatypes.ChatTrust{
		GroundingCount: len(citations),
		ChunkCount:     h.corpus.Len(),
		PolicyChecks:   h.guard.PolicyCheckNames(),
	}
	_ = writer.WriteDone(datatypes.StreamEvent{
		Answer:    answer.String(),
		Citations: citations,
		Trust:     trust,
		Outcome:   datatypes.OutcomeAnswered,
	})
	logger.Info("chat answered", "tokens", tokenCount, "citations", len(citations))
	h.record(state, datatypes.OutcomeAnswered, "")
}

// =============================================================================
// Terminal Paths
// =============================================================================

// terminateRefusal writes the done frame for a legitimate-but-unanswerable
// request. Refusals may explain themselves.
func (h *ChatHandler) terminateRefusal(state *requestState, reason datatypes.RefusalReason, message string) {
	_ = state.writer.WriteDone(datatypes.StreamEvent{
		Answer:        message,
		Trust:         h.emptyTrust(),
		Outcome:       datatypes.OutcomeRefused,
		RefusalReason: reason,
	})
	h.record(state, datatypes.OutcomeRefused, reason)
}

// terminateBlocked writes the done frame for a security block. The answer is
// always the generic block message; the reason field carries the category for
// API consumers, but no detection detail beyond the category name is exposed.
func (h *ChatHandler) terminateBlocked(state *requestState, reason datatypes.RefusalReason) {
	_ = state.writer.WriteDone(datatypes.StreamEvent{
		Answer:        msgBlocked,
		Trust:         h.emptyTrust(),
		Outcome:       datatypes.OutcomeBlocked,
		RefusalReason: reason,
	})
	h.record(state, datatypes.OutcomeBlocked, reason)
}

// terminateError writes the terminal error frame with a client-safe message.
func (h *ChatHandler) terminateError(state *requestState, message string) {
	_ = state.writer.WriteError(message)
	h.record(state, datatypes.OutcomeError, "")
}

func (h *ChatHandler) emptyTrust() *datatypes.ChatTrust {
	return &datatypes.ChatTrust{
		GroundingCount: 0,
		ChunkCount:     h.corpus.Len(),
		PolicyChecks:   h.guard.PolicyCheckNames(),
	}
}

// record books the terminal outcome into metrics and analytics exactly once
// per request. Safe to call from multiple terminal paths; the SSE writer's
// single-terminal invariant means only the first caller observed a live
// stream, and double metric recording is prevented by each path returning
// immediately after its terminal call.
func (h *ChatHandler) record(state *requestState, outcome datatypes.Outcome, reason datatypes.RefusalReason) {
	elapsed := time.Since(state.start)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOutcome(string(outcome), elapsed.Seconds())
		if reason != "" {
			m.RecordRefusal(string(reason))
		}
	}
	if h.analytics != nil {
		h.analytics.Emit(analytics.Event{
			RequestID:      state.requestID,
			Outcome:        outcome,
			RefusalReason:  reason,
			LatencyMs:      elapsed.Milliseconds(),
			GroundingCount: state.grounding,
			Provider:       h.client.Name(),
		})
	}
}
