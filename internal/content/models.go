// Package content provides the tenant-scoped content store: training sources
// submitted by bot owners, the embedded chunks derived from them, and the
// training pipeline that turns one into the other. All reads and writes are
// scoped by tenant ID — a tenant can never observe another tenant's content.
package content

import "time"

// SourceType classifies how a training source entered the system.
type SourceType string

const (
	// SourceURL is a web page submitted for crawling.
	SourceURL SourceType = "url"
	// SourceText is pasted free text.
	SourceText SourceType = "text"
	// SourceFile is an uploaded document's extracted text.
	SourceFile SourceType = "file"
	// SourceQA is curated question/answer pairs.
	SourceQA SourceType = "qa"
	// SourceInfo is structured business facts (hours, phone, address...).
	SourceInfo SourceType = "info"
)

// SourceStatus tracks a training source through its processing lifecycle.
type SourceStatus string

const (
	// StatusPending means the source has been created but not yet processed.
	StatusPending SourceStatus = "pending"
	// StatusProcessing means chunking and embedding are in progress.
	StatusProcessing SourceStatus = "processing"
	// StatusCompleted means all chunks are embedded and stored.
	StatusCompleted SourceStatus = "completed"
	// StatusFailed means processing aborted; no partial chunks are kept.
	StatusFailed SourceStatus = "failed"
)

// TrainingSource is a unit of bot knowledge submitted by a tenant.
type TrainingSource struct {
	// ID is the unique source identifier.
	ID string
	// TenantID is the owning bot's identifier.
	TenantID string
	// Type classifies the source.
	Type SourceType
	// RawContent is the source text (or URL for SourceURL before fetching).
	RawContent string
	// Status is the current processing state.
	Status SourceStatus
	// CreatedAt is when the source was submitted.
	CreatedAt time.Time
}

// Chunk is an embedded window of a training source's text. Chunks are
// immutable once created and are removed together with their parent source.
type Chunk struct {
	// ID is the unique chunk identifier.
	ID string
	// TenantID is the owning bot's identifier.
	TenantID string
	// SourceID is the parent training source.
	SourceID string
	// Text is the chunk's raw text.
	Text string
	// Vector is the chunk's embedding. All vectors for a tenant must share
	// one dimension and one embedding model — a model change requires full
	// re-embedding (operational constraint, not enforced automatically).
	Vector []float32
}
