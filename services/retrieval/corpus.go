// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval implements lexical retrieval over the documentation
// index with a grounding threshold.
//
// Retrieval is lexical-only by design: deterministic scoring over the index
// the docs build produces, no embeddings and no external search infra. The
// generator is never invoked without at least MinGroundingChunks results
// clearing the threshold.
package retrieval

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/skillgate-io/skillgate-docs/services/assistant/datatypes"
)

// embeddedDocsIndex is a snapshot of the docs index used when no external
// index path is configured (dev and tests). Production deployments point
// SKILLGATE_DOCS_INDEX at the index emitted by the docs build.
//
//go:embed docs_index.json
var embeddedDocsIndex []byte

// Corpus is the loaded documentation index plus the token tables derived
// from it at load time.
//
// # Thread Safety
//
// A Corpus is immutable after LoadCorpus returns and is shared across
// requests without synchronization.
type Corpus struct {
	chunks []datatypes.KnowledgeChunk

	// Per-chunk derived token sets, aligned by index with chunks.
	keywordSets []map[string]struct{}
	titleSets   []map[string]struct{}
	contentSets []map[string]struct{}
}

// LoadCorpus reads the documentation index.
//
// # Description
//
// Loads the flat JSON index from path, or the embedded snapshot when path is
// empty. Title, keyword, and content token sets are precomputed per chunk so
// scoring does no tokenization of chunk text at request time.
//
// # Inputs
//
//   - path: Index file path. Empty selects the embedded snapshot.
//
// # Outputs
//
//   - *Corpus: Immutable corpus ready for retrieval.
//   - error: Non-nil if the file cannot be read or parsed, or is empty.
func LoadCorpus(path string) (*Corpus, error) {
	raw := embeddedDocsIndex
	source := "embedded"
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read docs index %s: %w", path, err)
		}
		raw = data
		source = path
	}

	var chunks []datatypes.KnowledgeChunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, fmt.Errorf("failed to parse docs index %s: %w", source, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("docs index %s contains no entries", source)
	}

	c := &Corpus{
		chunks:      chunks,
		keywordSets: make([]map[string]struct{}, len(chunks)),
		titleSets:   make([]map[string]struct{}, len(chunks)),
		contentSets: make([]map[string]struct{}, len(chunks)),
	}
	for i := range chunks {
		kw := make(map[string]struct{}, len(chunks[i].Keywords))
		for _, k := range chunks[i].Keywords {
			for _, tok := range Tokenize(k) {
				kw[tok] = struct{}{}
			}
		}
		c.keywordSets[i] = kw
		c.titleSets[i] = tokenSet(chunks[i].Title)
		c.contentSets[i] = tokenSet(chunks[i].Content)
	}

	slog.Info("Loaded docs index", "source", source, "chunks", len(chunks))
	return c, nil
}

// Len returns the number of chunks in the corpus.
func (c *Corpus) Len() int {
	return len(c.chunks)
}

func tokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
