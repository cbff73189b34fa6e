package vision

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/botforge/botcore/internal/catalog"
	"github.com/botforge/botcore/internal/logging"
	"github.com/botforge/botcore/internal/rag"
)

// Match classification thresholds over cosine similarity.
const (
	// ExactThreshold: above this the product is treated as the one in the
	// image.
	ExactThreshold = 0.80

	// SimilarThreshold: between this and ExactThreshold the product is
	// offered as a close alternative.
	SimilarThreshold = 0.55

	// Floor: below this a candidate is dropped entirely, whatever its rank.
	Floor = 0.40

	// DefaultLimit is the number of matches returned when the caller
	// passes 0.
	DefaultLimit = 5
)

// MatchType is the three-way classification of a product match.
type MatchType string

const (
	// MatchExact marks a product considered identical to the imaged one.
	MatchExact MatchType = "exact"
	// MatchSimilar marks a close alternative.
	MatchSimilar MatchType = "similar"
	// MatchNone marks a candidate below SimilarThreshold. Such candidates
	// are filtered out of results; the constant exists for classification
	// completeness.
	MatchNone MatchType = "none"
)

// Classify buckets a similarity score.
func Classify(similarity float32) MatchType {
	switch {
	case similarity > ExactThreshold:
		return MatchExact
	case similarity >= SimilarThreshold:
		return MatchSimilar
	default:
		return MatchNone
	}
}

// ProductMatch is one catalog product matched against the image.
type ProductMatch struct {
	// Product is the matched catalog record.
	Product catalog.Product

	// Similarity is the cosine similarity between the image description
	// embedding and the product embedding.
	Similarity float32

	// Type classifies the match strength.
	Type MatchType
}

// Describer produces a text description of an image. provider.Client's
// CompleteVision satisfies it.
type Describer interface {
	CompleteVision(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error)
}

// searcher is the slice of the catalog adapter the matcher needs.
type searcher interface {
	Search(ctx context.Context, tenantID string, query []float32, limit int) ([]catalog.Match, error)
}

// Matcher runs the describe, embed, search pipeline. Safe for concurrent use.
type Matcher struct {
	describer Describer
	embedder  rag.Embedder
	catalog   searcher
}

// NewMatcher constructs a Matcher.
func NewMatcher(describer Describer, embedder rag.Embedder, cat searcher) (*Matcher, error) {
	if describer == nil {
		return nil, fmt.Errorf("vision: describer must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("vision: embedder must not be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("vision: catalog searcher must not be nil")
	}
	return &Matcher{describer: describer, embedder: embedder, catalog: cat}, nil
}

// MatchProduct matches the image against the tenant's catalog. Results are
// sorted descending, classified, filtered below the floor, and truncated to
// limit. The description produced for the image is returned for logging and
// for reuse as generation context.
func (m *Matcher) MatchProduct(ctx context.Context, tenantID string, imageData []byte, mimeType string, limit int) ([]ProductMatch, string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	description, err := m.describer.CompleteVision(ctx, describePrompt, imageData, mimeType)
	if err != nil {
		return nil, "", fmt.Errorf("vision: describe image: %w", err)
	}
	logging.FromContext(ctx).Debug("vision: image described",
		slog.String("tenant_id", tenantID),
		slog.Int("description_len", len(description)),
	)

	embeddings, err := m.embedder.Embed(ctx, []string{description})
	if err != nil {
		return nil, description, fmt.Errorf("vision: embed description: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, description, fmt.Errorf("vision: embedder returned no vector")
	}

	// Over-fetch so floor filtering does not starve the final result.
	candidates, err := m.catalog.Search(ctx, tenantID, embeddings[0], limit*2)
	if err != nil {
		return nil, description, fmt.Errorf("vision: catalog search: %w", err)
	}

	matches := make([]ProductMatch, 0, limit)
	for _, c := range candidates {
		if c.Similarity < Floor {
			continue
		}
		t := Classify(c.Similarity)
		if t == MatchNone {
			continue
		}
		matches = append(matches, ProductMatch{Product: c.Product, Similarity: c.Similarity, Type: t})
		if len(matches) == limit {
			break
		}
	}
	return matches, description, nil
}
