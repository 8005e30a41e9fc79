// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// newStreamServer serves a canned Anthropic SSE body and captures the
// request headers for assertion.
func newStreamServer(t *testing.T, body string, gotHeaders *http.Header) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}))
}

func testClient(baseURL string) *AnthropicClient {
	return &AnthropicClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     "sk-ant-test",
		model:      "claude-test",
	}
}

func TestAnthropicChatStreamDeltas(t *testing.T) {
	body := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start"}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Run "}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"skillgate scan"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	var headers http.Header
	server := newStreamServer(t, body, &headers)
	defer server.Close()

	client := testClient(server.URL)
	var got []string
	err := client.ChatStream(context.Background(), "system prompt",
		[]datatypes.Message{{Role: "user", Content: "how do I scan?"}},
		GenerationParams{},
		func(event StreamEvent) error {
			if event.Type != StreamEventToken {
				t.Errorf("unexpected event type %v", event.Type)
			}
			got = append(got, event.Content)
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}

	if joined := strings.Join(got, ""); joined != "Run skillgate scan" {
		t.Errorf("assembled deltas = %q, want %q", joined, "Run skillgate scan")
	}
	if headers.Get("x-api-key") != "sk-ant-test" {
		t.Errorf("x-api-key header = %q", headers.Get("x-api-key"))
	}
	if headers.Get("anthropic-version") != anthropicAPIVersion {
		t.Errorf("anthropic-version header = %q", headers.Get("anthropic-version"))
	}
}

func TestAnthropicChatStreamError(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`,
		``,
		`data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
		``,
	}, "\n")

	var headers http.Header
	server := newStreamServer(t, body, &headers)
	defer server.Close()

	client := testClient(server.URL)
	var sawError bool
	err := client.ChatStream(context.Background(), "", nil, GenerationParams{},
		func(event StreamEvent) error {
			if event.Type == StreamEventError {
				sawError = true
			}
			return nil
		})

	if err == nil {
		t.Fatal("expected an error from a stream error event")
	}
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("error is not a *ProviderError: %v", err)
	}
	if pe.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", pe.Provider)
	}
	if !sawError {
		t.Error("error event was not delivered to the callback")
	}
}

func TestAnthropicChatStreamCallbackAbort(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"one"}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"two"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	var headers http.Header
	server := newStreamServer(t, body, &headers)
	defer server.Close()

	client := testClient(server.URL)
	abort := fmt.Errorf("client went away")
	count := 0
	err := client.ChatStream(context.Background(), "", nil, GenerationParams{},
		func(event StreamEvent) error {
			count++
			return abort
		})

	if err != abort {
		t.Fatalf("ChatStream() = %v, want the callback's abort error", err)
	}
	if count != 1 {
		t.Errorf("callback ran %d times after aborting, want 1", count)
	}
}

func TestAnthropicChatStreamHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(server.URL)
	err := client.ChatStream(context.Background(), "", nil, GenerationParams{},
		func(event StreamEvent) error { return nil })

	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("error is not a *ProviderError: %v", err)
	}
	if !strings.Contains(pe.Error(), "401") {
		t.Errorf("error does not carry the status code: %v", pe)
	}
}
