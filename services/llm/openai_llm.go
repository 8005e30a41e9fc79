// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	defaultLocalBase = "http://localhost:11434/v1"

	defaultOpenAIModel = "gpt-4o-mini"
	defaultGroqModel   = "llama-3.3-70b-versatile"
	defaultLocalModel  = "llama3.1"

	// localAPIKey is a placeholder: the keyless local backend ignores
	// authorization, but the client library requires a non-empty key.
	localAPIKey = "sk-local"
)

// OpenAICompatClient streams completions from any OpenAI-compatible backend.
// One implementation covers OpenAI, Groq, and the local fallback; they
// differ only in base URL, key, and default model.
type OpenAICompatClient struct {
	client   *openai.Client
	provider string
	model    string
}

// NewOpenAIClient builds a client for api.openai.com from the environment.
// Requires OPENAI_API_KEY; model precedence is SKILLGATE_LLM_MODEL, then
// OPENAI_MODEL, then the package default.
func NewOpenAIClient() (*OpenAICompatClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, &ProviderError{Provider: "openai", Err: fmt.Errorf("OPENAI_API_KEY is not set")}
	}
	model := modelFromEnv("OPENAI_MODEL", defaultOpenAIModel)
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAICompatClient{
		client:   openai.NewClient(apiKey),
		provider: "openai",
		model:    model,
	}, nil
}

// NewGroqClient builds a client for Groq's OpenAI-compatible endpoint.
// Requires GROQ_API_KEY; model precedence is SKILLGATE_LLM_MODEL, then
// GROQ_MODEL, then the package default.
func NewGroqClient() (*OpenAICompatClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
	if apiKey == "" {
		return nil, &ProviderError{Provider: "groq", Err: fmt.Errorf("GROQ_API_KEY is not set")}
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL
	model := modelFromEnv("GROQ_MODEL", defaultGroqModel)
	slog.Info("Initializing Groq client", "model", model)
	return &OpenAICompatClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: "groq",
		model:    model,
	}, nil
}

// NewLocalClient builds a client for a keyless local OpenAI-compatible
// server (llama.cpp, Ollama, vLLM). Base URL comes from LOCAL_LLM_BASE_URL,
// defaulting to a local Ollama endpoint. Never fails on missing
// credentials; this is the end of the fallback chain.
func NewLocalClient() (*OpenAICompatClient, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(os.Getenv("LOCAL_LLM_BASE_URL")), "/")
	if baseURL == "" {
		baseURL = defaultLocalBase
		slog.Warn("LOCAL_LLM_BASE_URL not set, defaulting to", "base_url", baseURL)
	}
	cfg := openai.DefaultConfig(localAPIKey)
	cfg.BaseURL = baseURL
	model := modelFromEnv("LOCAL_LLM_MODEL", defaultLocalModel)
	slog.Info("Initializing local LLM client", "base_url", baseURL, "model", model)
	return &OpenAICompatClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: "local",
		model:    model,
	}, nil
}

// modelFromEnv resolves the model with the global override first.
func modelFromEnv(providerVar, fallback string) string {
	if model := os.Getenv("SKILLGATE_LLM_MODEL"); model != "" {
		return model
	}
	if model := os.Getenv(providerVar); model != "" {
		return model
	}
	return fallback
}

// Name implements the LLMClient interface.
func (o *OpenAICompatClient) Name() string {
	return o.provider
}

// ChatStream implements the LLMClient interface.
//
// # Description
//
// Opens a chat-completion stream and forwards every non-empty content delta
// to the callback in arrival order. The system prompt is prepended as the
// first message. A failed stream open or a mid-stream receive failure is a
// *ProviderError; callback errors (client disconnect) pass through
// unchanged.
func (o *OpenAICompatClient) ChatStream(ctx context.Context, system string,
	messages []datatypes.Message, params GenerationParams, callback StreamCallback) error {

	apiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: apiMessages,
		Stream:   true,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}

	slog.Debug("Starting chat completion stream", "provider", o.provider, "model", o.model)

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return &ProviderError{Provider: o.provider, Err: err}
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// Context cancellation means the client went away; not a
			// provider fault.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ProviderError{Provider: o.provider, Err: err}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := callback(StreamEvent{Type: StreamEventToken, Content: delta}); err != nil {
			return err
		}
	}
}
