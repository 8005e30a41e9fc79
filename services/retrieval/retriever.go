// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"regexp"
	"sort"
	"strings"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// =============================================================================
// Scoring Constants
// =============================================================================

// The scoring weights and threshold are empirically tuned against the
// retrieval scenario suite. Changing them is a behavior change that requires
// re-validation, not a refactor.
const (
	// weightKeyword scores a query token found in the chunk's keyword set.
	weightKeyword = 0.45

	// weightTitle scores a query token found in the title (when not a keyword).
	weightTitle = 0.35

	// weightContent scores a query token found only in the body text.
	weightContent = 0.15

	// boostCLIReference is added to "CLI Reference" chunks for flag-style
	// queries. Precision override for a known high-traffic intent.
	boostCLIReference = 0.25

	// boostScanCommand is added to the canonical scan-command chunk when the
	// query contains the literal token "scan".
	boostScanCommand = 0.2

	// GroundingThreshold is the minimum score a chunk must reach to count as
	// evidence.
	GroundingThreshold = 0.11

	// MaxResults caps the ranked result list.
	MaxResults = 5

	// MinGroundingChunks is the minimum evidence required before the
	// generator may answer. Fewer results is a hard refusal.
	MinGroundingChunks = 1

	// canonicalScanChunkID identifies the scan-command page targeted by
	// boostScanCommand.
	canonicalScanChunkID = "cli-scan"

	// sectionCLIReference is the docs section targeted by boostCLIReference.
	sectionCLIReference = "CLI Reference"
)

// ruleIDPattern matches SkillGate rule identifiers like sg-secrets-001.
// A rule-ID token always counts as a recognized domain term.
var ruleIDPattern = regexp.MustCompile(`(?i)^sg-[a-z]+-\d+$`)

// flagTokenPattern matches CLI-flag-shaped tokens like --format or -q.
var flagTokenPattern = regexp.MustCompile(`^--?[a-z][a-z0-9-]*$`)

// nonTokenChars strips everything that is not a letter, digit, underscore,
// or hyphen before splitting.
var nonTokenChars = regexp.MustCompile(`[^a-z0-9_\-\s]+`)

// stopWords are dropped during tokenization.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "do": {}, "does": {}, "did": {}, "can": {}, "could": {},
	"how": {}, "what": {}, "when": {}, "where": {}, "why": {}, "which": {}, "who": {},
	"i": {}, "you": {}, "my": {}, "your": {}, "me": {}, "we": {}, "it": {}, "its": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "from": {}, "with": {},
	"and": {}, "or": {}, "not": {}, "no": {}, "this": {}, "that": {}, "these": {},
	"there": {}, "as": {}, "at": {}, "by": {}, "if": {}, "into": {}, "about": {},
	"get": {}, "use": {}, "using": {}, "have": {}, "has": {}, "should": {},
}

// domainTerms is the fixed allow-list gating retrieval. A query with zero
// recognized tokens (and no rule-ID token) never reaches scoring, so
// off-domain queries cannot accumulate incidental content matches.
var domainTerms = map[string]struct{}{
	"skillgate": {}, "scan": {}, "scans": {}, "scanning": {}, "scanner": {},
	"rule": {}, "rules": {}, "pack": {}, "packs": {}, "finding": {}, "findings": {},
	"baseline": {}, "severity": {}, "waiver": {}, "suppress": {}, "remediation": {},
	"secrets": {}, "secret": {}, "credential": {}, "credentials": {},
	"sarif": {}, "junit": {}, "format": {}, "report": {}, "reports": {},
	"cli": {}, "command": {}, "commands": {}, "flag": {}, "flags": {}, "option": {}, "options": {},
	"config": {}, "configuration": {}, "configure": {}, "yaml": {},
	"install": {}, "installation": {}, "brew": {}, "homebrew": {}, "binary": {},
	"exclude": {}, "excludes": {}, "ignore": {}, "gitignore": {},
	"ci": {}, "pipeline": {}, "pipelines": {}, "workflow": {}, "workflows": {},
	"github": {}, "gitlab": {}, "actions": {}, "action": {}, "merge": {},
	"token": {}, "tokens": {}, "auth": {}, "authentication": {}, "login": {},
	"exit": {}, "code": {}, "codes": {}, "gate": {}, "policy": {}, "policies": {},
	"dashboard": {}, "org": {}, "repository": {}, "repo": {},
}

// =============================================================================
// Tokenization
// =============================================================================

// Tokenize lowercases text, strips punctuation (keeping _ and -), splits on
// whitespace, and drops single-character tokens and stop-words.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	cleaned := nonTokenChars.ReplaceAllString(lowered, " ")
	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// isDomainToken reports whether a token is a recognized SkillGate term or a
// rule-ID-shaped identifier.
func isDomainToken(tok string) bool {
	trimmed := strings.TrimLeft(tok, "-")
	if _, ok := domainTerms[trimmed]; ok {
		return true
	}
	return ruleIDPattern.MatchString(trimmed)
}

// isFlagStyleQuery reports whether the query is asking about CLI flags:
// either a dashed flag-shaped token or an explicit flag/option word.
func isFlagStyleQuery(tokens []string) bool {
	for _, tok := range tokens {
		switch tok {
		case "flag", "flags", "option", "options":
			return true
		}
		if strings.HasPrefix(tok, "-") && flagTokenPattern.MatchString(tok) {
			return true
		}
	}
	return false
}

// =============================================================================
// Retrieval
// =============================================================================

// Retrieve lexically scores the corpus against a raw query and returns the
// ranked evidence list.
//
// # Description
//
// The query is tokenized, then gated: if no token is a recognized domain
// term or rule ID, the result is empty and scoring never runs. Each chunk
// scores 0.45 per keyword hit, 0.35 per title hit, 0.15 per content hit
// (first match wins per token), normalized by the query token count. Intent
// boosters for flag-style queries and the scan command are applied after
// normalization, scores clamp at 1, chunks below GroundingThreshold are
// dropped, and the survivors are sorted descending and capped at MaxResults.
//
// # Inputs
//
//   - query: Raw user query string.
//
// # Outputs
//
//   - []datatypes.RetrievalResult: Ranked results, possibly empty. All
//     scores are in (0, 1] and non-increasing.
func (c *Corpus) Retrieve(query string) []datatypes.RetrievalResult {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	recognized := false
	for _, tok := range tokens {
		if isDomainToken(tok) {
			recognized = true
			break
		}
	}
	if !recognized {
		return nil
	}

	flagQuery := isFlagStyleQuery(tokens)
	hasScanToken := false
	for _, tok := range tokens {
		if tok == "scan" {
			hasScanToken = true
			break
		}
	}

	results := make([]datatypes.RetrievalResult, 0, MaxResults)
	for i := range c.chunks {
		score := c.scoreChunk(i, tokens)
		if score > 0 {
			// Boosters only amplify chunks with a lexical match; they never
			// surface a chunk the query did not touch.
			if flagQuery && c.chunks[i].Section == sectionCLIReference {
				score += boostCLIReference
			}
			if hasScanToken && c.chunks[i].ID == canonicalScanChunkID {
				score += boostScanCommand
			}
		}
		if score > 1 {
			score = 1
		}
		if score < GroundingThreshold {
			continue
		}
		results = append(results, datatypes.RetrievalResult{
			Chunk: &c.chunks[i],
			Score: score,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results
}

// scoreChunk computes the normalized lexical score of one chunk.
func (c *Corpus) scoreChunk(idx int, tokens []string) float64 {
	var total float64
	for _, tok := range tokens {
		trimmed := strings.TrimLeft(tok, "-")
		if _, ok := c.keywordSets[idx][trimmed]; ok {
			total += weightKeyword
			continue
		}
		if _, ok := c.titleSets[idx][trimmed]; ok {
			total += weightTitle
			continue
		}
		if _, ok := c.contentSets[idx][trimmed]; ok {
			total += weightContent
		}
	}
	return total / float64(len(tokens))
}
