package rag

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/botforge/botcore/internal/content"
	"github.com/botforge/botcore/internal/logging"
	"github.com/botforge/botcore/internal/similarity"
)

// ChunkReader is the slice of the content store the retriever needs.
type ChunkReader interface {
	ChunksByTenant(ctx context.Context, tenantID string) ([]content.Chunk, error)
}

// Retriever ranks a tenant's stored chunks against an embedded query.
// It is safe for concurrent use.
type Retriever struct {
	// embedder converts the query text to a dense vector.
	embedder Embedder

	// chunks reads the tenant's embedded chunks.
	chunks ChunkReader

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever. defaultTopK sets the fallback result
// count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, chunks ChunkReader, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if chunks == nil {
		return nil, fmt.Errorf("rag: chunk reader must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{
		embedder:    embedder,
		chunks:      chunks,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve returns the top-k chunks for the tenant most similar to the query.
//
// A tenant with no embedded chunks returns (nil, nil) without calling the
// embedder. An embedder failure also returns (nil, nil) after logging a
// warning, so the conversation can continue on the model's own knowledge.
// Vector dimension mismatches are corruption, not degradation, and are
// returned as errors.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	chunks, err := r.chunks.ChunksByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("rag: load chunks for tenant %s: %w", tenantID, err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		logging.FromContext(ctx).Warn("rag: query embedding failed, answering without retrieved context",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	candidates := make([]similarity.Candidate, len(chunks))
	for i, c := range chunks {
		candidates[i] = similarity.Candidate{ID: c.ID, Vector: c.Vector}
	}

	ranked, err := similarity.RankTopK(embeddings[0], candidates, topK)
	if err != nil {
		var dimErr *similarity.DimensionError
		if errors.As(err, &dimErr) {
			return nil, fmt.Errorf("rag: tenant %s has vectors of a different dimension than the query embedding (re-train after changing embedding models): %w", tenantID, err)
		}
		return nil, fmt.Errorf("rag: rank chunks for tenant %s: %w", tenantID, err)
	}

	byID := make(map[string]string, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c.Text
	}
	matches := make([]Match, 0, len(ranked))
	for _, m := range ranked {
		matches = append(matches, Match{Content: byID[m.ID], Similarity: m.Score})
	}
	return matches, nil
}
