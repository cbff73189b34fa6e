package content

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/botforge/botcore/internal/chunker"
)

// Embedder converts a batch of texts into embeddings. The returned slice is
// parallel to the input. Satisfied by the implementations in
// internal/embedder; declared here so the pipeline does not depend on the
// retrieval layer.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// PipelineConfig holds the configuration for the training pipeline.
type PipelineConfig struct {
	// Chunker controls the chunk window. Defaults apply if nil.
	Chunker *chunker.Config

	// HTTPTimeout is the timeout for fetching url-typed sources.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline turns a pending training source into embedded chunks:
// fetch (url sources) → chunk → embed → store, with the source's status
// transitioning pending → processing → completed | failed.
type Pipeline struct {
	// embedder converts chunk text into dense vector embeddings.
	embedder Embedder

	// store persists sources and chunks.
	store Store

	// chunks is the shared chunking window.
	chunks *chunker.Chunker

	// httpClient fetches url-typed sources.
	httpClient *http.Client

	// userAgent is sent with fetch requests.
	userAgent string
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder Embedder, store Store, cfg *PipelineConfig) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("content: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("content: store must not be nil")
	}
	if cfg == nil {
		cfg = &PipelineConfig{}
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "botcore/1.0 (training source ingestion)"
	}

	return &Pipeline{
		embedder:   embedder,
		store:      store,
		chunks:     chunker.New(cfg.Chunker),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  ua,
	}, nil
}

// Process chunks, embeds, and stores a single training source. The source's
// status is updated as processing progresses; on any failure the source is
// marked failed and the error returned. QA and info sources are stored and
// embedded like any other text so they also participate in retrieval, not
// only in direct matching.
func (p *Pipeline) Process(ctx context.Context, src *TrainingSource) error {
	if err := p.store.UpdateSourceStatus(ctx, src.ID, StatusProcessing); err != nil {
		return fmt.Errorf("content: process %s: %w", src.ID, err)
	}

	text := src.RawContent
	if src.Type == SourceURL {
		fetched, err := p.fetch(ctx, src.RawContent)
		if err != nil {
			return p.fail(ctx, src, fmt.Errorf("content: fetch %s: %w", src.RawContent, err))
		}
		text = fetched
	}

	texts := p.chunks.Chunk(text)
	if len(texts) == 0 {
		// Nothing embeddable — still a completed source (e.g. a short info
		// source used only by the direct matcher).
		if err := p.store.UpdateSourceStatus(ctx, src.ID, StatusCompleted); err != nil {
			return fmt.Errorf("content: process %s: %w", src.ID, err)
		}
		return nil
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return p.fail(ctx, src, fmt.Errorf("content: embedding failed for source %s: %w", src.ID, err))
	}
	if len(embeddings) != len(texts) {
		return p.fail(ctx, src, fmt.Errorf("content: embedder returned %d vectors for %d chunks", len(embeddings), len(texts)))
	}

	chunks := make([]Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, Chunk{
			ID:       chunkID(src.ID, i),
			TenantID: src.TenantID,
			SourceID: src.ID,
			Text:     t,
			Vector:   embeddings[i],
		})
	}

	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return p.fail(ctx, src, fmt.Errorf("content: store chunks for source %s: %w", src.ID, err))
	}

	if err := p.store.UpdateSourceStatus(ctx, src.ID, StatusCompleted); err != nil {
		return fmt.Errorf("content: process %s: %w", src.ID, err)
	}
	return nil
}

// fail marks the source failed and returns cause. A status update failure is
// secondary to the original error and is not reported.
func (p *Pipeline) fail(ctx context.Context, src *TrainingSource, cause error) error {
	_ = p.store.UpdateSourceStatus(ctx, src.ID, StatusFailed)
	return cause
}

// fetch retrieves the raw text content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/plain, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return string(body), nil
}

// chunkID generates a deterministic ID for a chunk based on its parent
// source and chunk index, so reprocessing a source overwrites rather than
// duplicates.
func chunkID(sourceID string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourceID, index)))
	return fmt.Sprintf("%x", h[:16])
}
