// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// KnowledgeChunk is one entry of the documentation index.
//
// Chunks are produced by the docs build (see the site repository's indexing
// step); this service only reads them. The corpus is loaded once at startup
// and treated as immutable for the process lifetime, so chunks are shared
// across requests without synchronization.
type KnowledgeChunk struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Section   string   `json:"section"`
	Content   string   `json:"content"`
	URL       string   `json:"url"`
	Anchor    string   `json:"anchor,omitempty"`
	Keywords  []string `json:"keywords"`
	IndexedAt string   `json:"indexedAt"`
}

// RetrievalResult pairs a chunk with its lexical relevance score.
//
// Scores are always in (0, 1]. The retriever clamps boosted scores at 1.
type RetrievalResult struct {
	Chunk *KnowledgeChunk `json:"chunk"`
	Score float64         `json:"score"`
}
