package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/botforge/botcore/internal/logging"
	"github.com/botforge/botcore/internal/rag"
)

// Import pacing. Embedding providers rate-limit aggressively, so the importer
// works in small batches with a deliberate pause between them. Partial
// success is the expected outcome for large catalogs.
const (
	// DefaultBatchSize is how many items are embedded per batch.
	DefaultBatchSize = 3

	// DefaultBatchInterval is the pause between batches.
	DefaultBatchInterval = 1500 * time.Millisecond
)

// Item is one catalog entry as it appears in an import file.
type Item struct {
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	ImageURL    string `json:"imageUrl"`
	PageURL     string `json:"pageUrl"`
	Description string `json:"description"`
}

// ImportSummary reports what happened to an import run.
type ImportSummary struct {
	// Processed is the number of items successfully embedded and stored.
	Processed int

	// Failed is the number of items that errored. Failures are logged and
	// skipped, never retried.
	Failed int

	// Deduped is the number of items dropped as size variants of an item
	// already seen in this run.
	Deduped int
}

// Importer embeds catalog items and writes them through the adapter.
type Importer struct {
	embedder rag.Embedder
	adapter  *Adapter
	limiter  *rate.Limiter
	batch    int
}

// NewImporter constructs an Importer with default pacing.
func NewImporter(embedder rag.Embedder, adapter *Adapter) (*Importer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("catalog: embedder must not be nil")
	}
	if adapter == nil {
		return nil, fmt.Errorf("catalog: adapter must not be nil")
	}
	return &Importer{
		embedder: embedder,
		adapter:  adapter,
		limiter:  rate.NewLimiter(rate.Every(DefaultBatchInterval), 1),
		batch:    DefaultBatchSize,
	}, nil
}

// ParseFile reads a JSON array of items from disk.
func ParseFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return items, nil
}

// sizeSuffixes are trailing tokens treated as size variants during dedup.
var sizeSuffixes = map[string]struct{}{
	"xs": {}, "s": {}, "m": {}, "l": {}, "xl": {}, "xxl": {}, "xxxl": {},
	"2xl": {}, "3xl": {}, "one-size": {}, "onesize": {},
}

// baseName normalizes an item name for dedup by lowercasing and stripping
// trailing size tokens, so "Blue Jeans S" and "Blue Jeans L" collapse to
// "blue jeans".
func baseName(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for len(words) > 1 {
		last := words[len(words)-1]
		if _, ok := sizeSuffixes[strings.Trim(last, "-/,")]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// Import embeds and stores the items for the tenant. Items that are size
// variants of an already-imported name are skipped; items that fail to embed
// or store are counted and skipped. The returned summary is always valid,
// even alongside a non-nil error (context cancellation mid-run).
func (im *Importer) Import(ctx context.Context, tenantID string, items []Item) (ImportSummary, error) {
	log := logging.FromContext(ctx)
	summary := ImportSummary{}
	seen := make(map[string]struct{})

	var queue []Item
	for _, item := range items {
		key := baseName(item.Name)
		if _, dup := seen[key]; dup {
			summary.Deduped++
			continue
		}
		seen[key] = struct{}{}
		queue = append(queue, item)
	}

	for start := 0; start < len(queue); start += im.batch {
		if err := im.limiter.Wait(ctx); err != nil {
			return summary, fmt.Errorf("catalog: import interrupted: %w", err)
		}

		end := start + im.batch
		if end > len(queue) {
			end = len(queue)
		}
		for _, item := range queue[start:end] {
			if err := im.importOne(ctx, tenantID, item); err != nil {
				summary.Failed++
				log.Warn("catalog: item import failed",
					slog.String("tenant_id", tenantID),
					slog.String("product_id", item.ProductID),
					slog.String("error", err.Error()),
				)
				continue
			}
			summary.Processed++
		}
	}
	return summary, nil
}

// importOne embeds the item's text and writes it through the adapter.
func (im *Importer) importOne(ctx context.Context, tenantID string, item Item) error {
	text := item.Name
	if item.Description != "" {
		text += "\n" + item.Description
	}
	embeddings, err := im.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("embedder returned no vector")
	}

	return im.adapter.Upsert(ctx, &Product{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ProductID:   item.ProductID,
		Name:        item.Name,
		Price:       item.Price,
		ImageURL:    item.ImageURL,
		PageURL:     item.PageURL,
		Description: item.Description,
		Vector:      embeddings[0],
	})
}
