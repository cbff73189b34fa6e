package catalog

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/botforge/botcore/internal/logging"
)

// Index is the primary vector index contract. QdrantIndex satisfies it; tests
// substitute fakes.
type Index interface {
	IsAvailable(ctx context.Context) bool
	Upsert(ctx context.Context, p *Product) error
	Search(ctx context.Context, tenantID string, query []float32, limit int) ([]Match, error)
	DeleteByTenant(ctx context.Context, tenantID string) error
}

// Fallback is the relational side contract. SQLiteStore satisfies it.
type Fallback interface {
	Upsert(ctx context.Context, p *Product) error
	Search(ctx context.Context, tenantID string, query []float32, limit int) ([]Match, error)
	ByTenant(ctx context.Context, tenantID string) ([]Product, error)
	DeleteByTenant(ctx context.Context, tenantID string) error
}

// Adapter presents one vector-store surface over the index and the relational
// store. Writes go to both so a search keeps working if the index dies after
// ingestion; reads try the index and fall back on any error, on
// unavailability, or on an empty result (an empty index with a populated
// relational store usually means the collection was rebuilt or lost).
type Adapter struct {
	// index is the primary store. May be nil when no index is configured,
	// in which case every operation uses the fallback alone.
	index Index

	// fallback is the relational system of record. Required.
	fallback Fallback
}

// NewAdapter constructs an Adapter. index may be nil; fallback must not be.
func NewAdapter(index Index, fallback Fallback) (*Adapter, error) {
	if fallback == nil {
		return nil, fmt.Errorf("catalog: fallback store must not be nil")
	}
	return &Adapter{index: index, fallback: fallback}, nil
}

// Upsert writes the product to the relational store and then to the index.
// The relational write is authoritative; an index failure is logged and
// swallowed since search recovers through the fallback.
func (a *Adapter) Upsert(ctx context.Context, p *Product) error {
	if err := a.fallback.Upsert(ctx, p); err != nil {
		return err
	}
	if a.index == nil {
		return nil
	}
	if err := a.index.Upsert(ctx, p); err != nil {
		logging.FromContext(ctx).Warn("catalog: index upsert failed, product stored in fallback only",
			slog.String("tenant_id", p.TenantID),
			slog.String("product_id", p.ProductID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Search queries the index first and falls back to the relational store when
// the index is missing, unavailable, erroring, or empty. Index errors never
// propagate to the caller.
func (a *Adapter) Search(ctx context.Context, tenantID string, query []float32, limit int) ([]Match, error) {
	if a.index != nil && a.index.IsAvailable(ctx) {
		matches, err := a.index.Search(ctx, tenantID, query, limit)
		if err == nil && len(matches) > 0 {
			return matches, nil
		}
		if err != nil {
			reason := "error"
			if errors.Is(err, ErrIndexUnavailable) {
				reason = "unavailable"
			}
			failoverTotal.WithLabelValues(reason).Inc()
			logging.FromContext(ctx).Warn("catalog: index search failed, using fallback",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
		} else {
			failoverTotal.WithLabelValues("empty").Inc()
		}
	} else {
		failoverTotal.WithLabelValues("unavailable").Inc()
	}
	return a.fallback.Search(ctx, tenantID, query, limit)
}

// Products returns the tenant's catalog from the relational store.
func (a *Adapter) Products(ctx context.Context, tenantID string) ([]Product, error) {
	return a.fallback.ByTenant(ctx, tenantID)
}

// Clear removes the tenant's catalog from both stores. The relational delete
// is authoritative; an index failure is logged and swallowed. Stale index
// points are overwritten on the next import because point IDs are
// deterministic.
func (a *Adapter) Clear(ctx context.Context, tenantID string) error {
	if err := a.fallback.DeleteByTenant(ctx, tenantID); err != nil {
		return err
	}
	if a.index == nil {
		return nil
	}
	if err := a.index.DeleteByTenant(ctx, tenantID); err != nil {
		logging.FromContext(ctx).Warn("catalog: index delete failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
