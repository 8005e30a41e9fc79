// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ResolveClient picks the completion provider for this process.
//
// # Description
//
// Precedence, first satisfied wins:
//
//  1. SKILLGATE_LLM_PROVIDER names a provider explicitly (anthropic,
//     openai, groq, local). An explicit choice that fails to initialize is
//     an error; there is no silent fallback past an explicit selection.
//  2. Anthropic, if ANTHROPIC_API_KEY is set.
//  3. OpenAI, if OPENAI_API_KEY is set.
//  4. Groq, if GROQ_API_KEY is set.
//  5. The keyless local backend.
//
// Resolution runs once at startup; the returned client is shared by all
// requests.
//
// # Outputs
//
//   - LLMClient: The resolved provider.
//   - error: Non-nil only when the explicit or final-fallback constructor
//     fails; wrapped as *ProviderError by the constructors.
func ResolveClient() (LLMClient, error) {
	if explicit := strings.ToLower(strings.TrimSpace(os.Getenv("SKILLGATE_LLM_PROVIDER"))); explicit != "" {
		slog.Info("LLM provider selected explicitly", "provider", explicit)
		switch explicit {
		case "anthropic":
			return NewAnthropicClient()
		case "openai":
			return NewOpenAIClient()
		case "groq":
			return NewGroqClient()
		case "local":
			return NewLocalClient()
		default:
			return nil, &ProviderError{
				Provider: explicit,
				Err:      fmt.Errorf("unknown provider in SKILLGATE_LLM_PROVIDER"),
			}
		}
	}

	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return NewAnthropicClient()
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewOpenAIClient()
	}
	if os.Getenv("GROQ_API_KEY") != "" {
		return NewGroqClient()
	}

	slog.Info("No provider credentials found, using local fallback")
	return NewLocalClient()
}
