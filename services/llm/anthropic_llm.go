// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"

	defaultAnthropicModel     = "claude-3-5-sonnet-20240620"
	defaultAnthropicMaxTokens = 4096
)

// --- Wire Types ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicStreamEvent covers the SSE event payloads we care about:
// content_block_delta (text deltas), message_stop, and error.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *anthropicError `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// --- Client Implementation ---

// AnthropicClient streams completions from the Anthropic Messages API using
// its native SSE protocol.
type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewAnthropicClient builds a client from the environment.
//
// Requires ANTHROPIC_API_KEY. Model precedence: SKILLGATE_LLM_MODEL, then
// CLAUDE_MODEL, then the package default. A missing key is a *ProviderError
// so the resolver can report which provider failed to initialize.
func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, &ProviderError{Provider: "anthropic", Err: fmt.Errorf("ANTHROPIC_API_KEY is not set")}
	}

	model := os.Getenv("SKILLGATE_LLM_MODEL")
	if model == "" {
		model = os.Getenv("CLAUDE_MODEL")
	}
	if model == "" {
		model = defaultAnthropicModel
		slog.Info("CLAUDE_MODEL not set, defaulting to", "model", model)
	}

	return &AnthropicClient{
		// No overall timeout: streams are long-lived and cancellation is
		// driven by the request context.
		httpClient: &http.Client{},
		baseURL:    anthropicBaseURL,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

// Name implements the LLMClient interface.
func (a *AnthropicClient) Name() string {
	return "anthropic"
}

// ChatStream implements the LLMClient interface.
//
// # Description
//
// Sends a streaming Messages API request and forwards every text_delta to
// the callback as a StreamEventToken, in order, one callback invocation per
// delta. An error event from the API surfaces as both a StreamEventError
// callback and a returned *ProviderError.
func (a *AnthropicClient) ChatStream(ctx context.Context, system string,
	messages []datatypes.Message, params GenerationParams, callback StreamCallback) error {

	apiMessages := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	payload := anthropicRequest{
		Model:       a.model,
		Messages:    apiMessages,
		System:      system,
		MaxTokens:   defaultAnthropicMaxTokens,
		Stream:      true,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
	if params.MaxTokens != nil {
		payload.MaxTokens = *params.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "text/event-stream")

	slog.Debug("Starting Anthropic stream", "model", a.model, "messages", len(apiMessages))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: "anthropic", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{
			Provider: "anthropic",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(errBody)),
		}
	}

	return a.consumeStream(resp.Body, callback)
}

// consumeStream reads SSE lines and dispatches text deltas to the callback.
func (a *AnthropicClient) consumeStream(body io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(body)
	// Deltas are small but error payloads can be verbose.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			slog.Warn("Skipping unparseable anthropic stream event", "error", err)
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				continue
			}
			if err := callback(StreamEvent{Type: StreamEventToken, Content: event.Delta.Text}); err != nil {
				return err
			}
		case "error":
			msg := "unknown stream error"
			if event.Error != nil {
				msg = event.Error.Message
			}
			_ = callback(StreamEvent{Type: StreamEventError, Error: msg})
			return &ProviderError{Provider: "anthropic", Err: fmt.Errorf("stream error: %s", msg)}
		case "message_stop":
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return &ProviderError{Provider: "anthropic", Err: fmt.Errorf("stream read failed: %w", err)}
	}
	return nil
}
