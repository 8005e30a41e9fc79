// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guardrails implements the deterministic pre-generation screen for
// adversarial user intent, the off-topic classifier, and the chunk sanitizer.
//
// All screening is pattern matching over embedded policy rules; there is no
// moderation model. The engine is read-only after construction and safe for
// concurrent use.
package guardrails

import (
	"fmt"
	"strings"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
	"github.com/skillgate-io/skillgate-docs/services/guardrails/enforcement"
	"gopkg.in/yaml.v3"
)

// SanitizePlaceholder replaces matched injection markers in chunk content.
// It must never itself match a sanitizer pattern, so sanitization is
// idempotent.
const SanitizePlaceholder = "[filtered]"

// Engine is the entry point for prompt screening operations.
//
// # Thread Safety
//
// Engine holds only compiled patterns and is safe for concurrent use.
type Engine struct {
	policy ScreeningPolicyFile
}

// NewEngine builds an Engine from the policy embedded in the binary.
//
// It unmarshals the embedded YAML and compiles every regex. Returns an error
// if the embedded policy is malformed or contains an invalid pattern; both
// are build defects, so callers typically treat this as fatal at startup.
func NewEngine() (*Engine, error) {
	var policy ScreeningPolicyFile
	if err := yaml.Unmarshal(enforcement.PromptScreeningPatterns, &policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded screening policy: %w", err)
	}
	if err := policy.compileRegexes(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy}, nil
}

// Screen classifies a raw user message against the four adversarial-intent
// categories.
//
// # Description
//
// The message is lowercased once, then each category's patterns are tried in
// file order. The first category with any match wins; categories are
// mutually exclusive by construction. A match on a security-class category
// maps to outcome blocked upstream, and the caller must not surface which
// category fired to the client.
//
// # Inputs
//
//   - message: Raw user message, unmodified.
//
// # Outputs
//
//   - GuardrailResult: Blocked=true with the matched category's refusal
//     reason, or Blocked=false for a clean message.
func (e *Engine) Screen(message string) GuardrailResult {
	lowered := strings.ToLower(message)
	for i := range e.policy.Screening {
		cat := &e.policy.Screening[i]
		for _, re := range cat.compiled {
			if re.MatchString(lowered) {
				return GuardrailResult{
					Blocked: true,
					Reason:  datatypes.RefusalReason(cat.Name),
				}
			}
		}
	}
	return GuardrailResult{}
}

// IsOffTopic reports whether a message is about an unrelated domain
// (weather, finance, sports, entertainment, everyday life).
//
// Consulted only after retrieval fails, to distinguish the off_topic refusal
// (question about something else entirely) from no_relevant_docs (on-topic
// question the corpus cannot answer).
func (e *Engine) IsOffTopic(message string) bool {
	lowered := strings.ToLower(message)
	for i := range e.policy.OffTopic {
		if e.policy.OffTopic[i].compiled.MatchString(lowered) {
			return true
		}
	}
	return false
}

// SanitizeChunk strips injection markers from retrieved chunk content.
//
// # Description
//
// Every sanitizer pattern is applied to the raw content; matches are
// replaced with SanitizePlaceholder. Runs on every retrieved chunk, always:
// retrieved content is adversarial input from the generator's perspective
// and gets the same treatment as user input. Non-marker substrings are
// preserved verbatim and the operation is idempotent.
//
// # Inputs
//
//   - content: Raw chunk content as stored in the docs index.
//
// # Outputs
//
//   - string: Content with all recognized markers replaced.
func (e *Engine) SanitizeChunk(content string) string {
	sanitized := content
	for i := range e.policy.Sanitizer {
		sanitized = e.policy.Sanitizer[i].compiled.ReplaceAllString(sanitized, SanitizePlaceholder)
	}
	return sanitized
}

// PolicyCheckNames returns the ordered list of screening stages this engine
// runs, for inclusion in trust metadata.
func (e *Engine) PolicyCheckNames() []string {
	names := make([]string, 0, len(e.policy.Screening)+1)
	for i := range e.policy.Screening {
		names = append(names, e.policy.Screening[i].Name)
	}
	names = append(names, "chunk_sanitizer")
	return names
}
