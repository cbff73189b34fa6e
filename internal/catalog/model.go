// Package catalog stores a tenant's product catalog with embedded
// descriptions and answers similarity queries over it. Vectors live in two
// places at once: a Qdrant collection for fast server-side search and a
// SQLite table scored in-process. The adapter prefers Qdrant and fails over
// to SQLite whenever Qdrant is down, erroring, or empty.
package catalog

import "errors"

// ErrIndexUnavailable reports that the primary vector index cannot be
// reached. QdrantIndex wraps connectivity failures in it; the adapter checks
// for it to classify a failover as an outage rather than a query error, then
// recovers through the relational store. It never reaches the end user.
var ErrIndexUnavailable = errors.New("catalog: vector index unavailable")

// Product is one catalog entry with its embedded description.
type Product struct {
	// ID is the internal record identifier.
	ID string

	// TenantID scopes the product to one bot.
	TenantID string

	// ProductID is the external catalog identifier. Re-imports with the
	// same ProductID update the record instead of duplicating it.
	ProductID string

	// Name is the display name.
	Name string

	// Price is the display price string as imported (currency included).
	Price string

	// ImageURL points at the product image.
	ImageURL string

	// PageURL points at the product page.
	PageURL string

	// Description is the text that was embedded.
	Description string

	// Vector is the embedding of Description.
	Vector []float32
}

// Match is a product scored against a query vector.
type Match struct {
	// Product is the matched record. Vector is not populated on matches
	// served from the index.
	Product Product

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float32
}
