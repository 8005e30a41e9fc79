// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guardrails

import (
	"fmt"
	"regexp"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// ScreeningPolicyFile mirrors the embedded prompt_screening_patterns.yaml.
//
// Screening categories are evaluated in file order: the screener is a
// deterministic first-match classifier, so category order in the YAML is the
// category precedence. There is no scoring or severity ranking.
type ScreeningPolicyFile struct {
	// Screening holds the four adversarial-intent categories, in
	// precedence order.
	Screening []Category `yaml:"screening"`

	// OffTopic holds patterns for unrelated domains (weather, finance,
	// sports, ...). Consulted only after retrieval returns nothing, to pick
	// between the off_topic and no_relevant_docs refusal reasons.
	OffTopic []Pattern `yaml:"off_topic"`

	// Sanitizer holds injection-marker patterns stripped from retrieved
	// chunk content before prompt interpolation.
	Sanitizer []Pattern `yaml:"sanitizer"`
}

// Category is one adversarial-intent class with its pattern set.
type Category struct {
	// Name must be one of the security-class refusal reasons
	// (prompt_injection, jailbreak_attempt, data_exfiltration,
	// unsafe_request).
	Name string `yaml:"name"`

	Description string    `yaml:"description"`
	Patterns    []Pattern `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// Pattern is a single rule within a category.
type Pattern struct {
	Id          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`

	compiled *regexp.Regexp
}

// GuardrailResult is the screener's verdict for one message.
type GuardrailResult struct {
	Blocked bool
	Reason  datatypes.RefusalReason
}

// compileRegexes compiles every pattern in the file, failing fast on the
// first invalid regex so a bad policy file cannot ship.
func (f *ScreeningPolicyFile) compileRegexes() error {
	for i := range f.Screening {
		cat := &f.Screening[i]
		for j := range cat.Patterns {
			p := &cat.Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile screening pattern %s: %w", p.Id, err)
			}
			p.compiled = re
			cat.compiled = append(cat.compiled, re)
		}
	}
	for i := range f.OffTopic {
		re, err := regexp.Compile(f.OffTopic[i].Regex)
		if err != nil {
			return fmt.Errorf("failed to compile off-topic pattern %s: %w", f.OffTopic[i].Id, err)
		}
		f.OffTopic[i].compiled = re
	}
	for i := range f.Sanitizer {
		re, err := regexp.Compile(f.Sanitizer[i].Regex)
		if err != nil {
			return fmt.Errorf("failed to compile sanitizer pattern %s: %w", f.Sanitizer[i].Id, err)
		}
		f.Sanitizer[i].compiled = re
	}
	return nil
}
