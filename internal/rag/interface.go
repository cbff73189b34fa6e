// Package rag retrieves tenant knowledge for answer generation. A Retriever
// embeds the incoming question, ranks the tenant's stored chunks by cosine
// similarity, and returns the best ones as context for the chat model.
package rag

import (
	"context"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Match is a retrieved chunk with its similarity to the query.
type Match struct {
	// Content is the chunk text.
	Content string

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float32
}
