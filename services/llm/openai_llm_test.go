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

	"github.com/sashabaranov/go-openai"
	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// newOpenAIStubServer serves OpenAI-style chat completion chunks.
func newOpenAIStubServer(t *testing.T, deltas []string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"nope"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, delta := range deltas {
			fmt.Fprintf(w,
				"data: {\"id\":\"chatcmpl-%d\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n",
				i, delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func testCompatClient(baseURL string) *OpenAICompatClient {
	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = baseURL
	return &OpenAICompatClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: "openai",
		model:    "gpt-test",
	}
}

func TestOpenAICompatChatStreamDeltas(t *testing.T) {
	server := newOpenAIStubServer(t, []string{"skillgate ", "scan ", "--baseline"}, http.StatusOK)
	defer server.Close()

	client := testCompatClient(server.URL)
	var got []string
	err := client.ChatStream(context.Background(), "system",
		[]datatypes.Message{{Role: "user", Content: "baseline flag?"}},
		GenerationParams{},
		func(event StreamEvent) error {
			got = append(got, event.Content)
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}

	if joined := strings.Join(got, ""); joined != "skillgate scan --baseline" {
		t.Errorf("assembled deltas = %q", joined)
	}
}

func TestOpenAICompatChatStreamProviderError(t *testing.T) {
	server := newOpenAIStubServer(t, nil, http.StatusTooManyRequests)
	defer server.Close()

	client := testCompatClient(server.URL)
	err := client.ChatStream(context.Background(), "", nil, GenerationParams{},
		func(event StreamEvent) error { return nil })

	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("error is not a *ProviderError: %v", err)
	}
	if pe.Provider != "openai" {
		t.Errorf("provider = %q, want openai", pe.Provider)
	}
}

func TestOpenAICompatChatStreamCallbackAbort(t *testing.T) {
	server := newOpenAIStubServer(t, []string{"one", "two", "three"}, http.StatusOK)
	defer server.Close()

	client := testCompatClient(server.URL)
	abort := fmt.Errorf("listener gone")
	count := 0
	err := client.ChatStream(context.Background(), "", nil, GenerationParams{},
		func(event StreamEvent) error {
			count++
			return abort
		})

	if err != abort {
		t.Fatalf("ChatStream() = %v, want the abort error", err)
	}
	if count != 1 {
		t.Errorf("callback ran %d times after aborting, want 1", count)
	}
}
