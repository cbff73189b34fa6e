package catalog

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds connection parameters for the product index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex is the primary product index. All tenants share one collection;
// every query carries a server-side tenant filter so rows of other tenants
// are never scanned.
type QdrantIndex struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection exists
// (creating it if necessary).
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to create qdrant client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("catalog: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("catalog: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// indexErr wraps a Qdrant RPC failure, marking connectivity failures with
// ErrIndexUnavailable so the adapter can tell an outage from a query error.
func indexErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("catalog: qdrant %s: %w: %w", op, ErrIndexUnavailable, err)
	}
	return fmt.Errorf("catalog: qdrant %s: %w", op, err)
}

// pointID derives a stable numeric point ID from the product and tenant, so
// re-upserting the same product overwrites its point instead of duplicating it.
func pointID(productID, tenantID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(productID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(tenantID))
	return h.Sum64()
}

// IsAvailable probes the index with the native HealthCheck RPC.
func (q *QdrantIndex) IsAvailable(ctx context.Context) bool {
	_, err := q.client.HealthCheck(ctx)
	return err == nil
}

// Upsert writes the product's vector and payload to the index.
func (q *QdrantIndex) Upsert(ctx context.Context, p *Product) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(pointID(p.ProductID, p.TenantID)),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"tenant_id":   p.TenantID,
			"product_id":  p.ProductID,
			"name":        p.Name,
			"price":       p.Price,
			"image_url":   p.ImageURL,
			"page_url":    p.PageURL,
			"description": p.Description,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return indexErr("upsert "+p.ProductID, err)
	}
	return nil
}

// Search returns the tenant's closest products to the query vector, filtered
// server-side by tenant.
func (q *QdrantIndex) Search(ctx context.Context, tenantID string, query []float32, limit int) ([]Match, error) {
	lim := uint64(limit)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("tenant_id", tenantID),
			},
		},
	})
	if err != nil {
		return nil, indexErr("search for tenant "+tenantID, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{Similarity: r.Score}
		if p := r.Payload; p != nil {
			m.Product = Product{
				TenantID:    payloadString(p, "tenant_id"),
				ProductID:   payloadString(p, "product_id"),
				Name:        payloadString(p, "name"),
				Price:       payloadString(p, "price"),
				ImageURL:    payloadString(p, "image_url"),
				PageURL:     payloadString(p, "page_url"),
				Description: payloadString(p, "description"),
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// DeleteByTenant removes every point belonging to the tenant via a
// server-side filter selector.
func (q *QdrantIndex) DeleteByTenant(ctx context.Context, tenantID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("tenant_id", tenantID),
			},
		}),
	})
	if err != nil {
		return indexErr("delete tenant "+tenantID, err)
	}
	return nil
}

// Client exposes the underlying gRPC client for readiness probing.
func (q *QdrantIndex) Client() *qdrant.Client { return q.client }

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func payloadString(p map[string]*qdrant.Value, key string) string {
	if v, ok := p[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
