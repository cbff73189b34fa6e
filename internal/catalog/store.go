package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/botforge/botcore/internal/similarity"
)

// SQLiteStore is the relational side of the catalog: the system of record for
// product rows and the fallback searcher when the vector index is down.
// Similarity is computed in-process over every row for the tenant, which is a
// linear scan and fine at catalog scale.
type SQLiteStore struct {
	db *sql.DB
}

// OpenStore opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenStore(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS products (
    id           TEXT PRIMARY KEY,
    tenant_id    TEXT NOT NULL,
    product_id   TEXT NOT NULL,
    name         TEXT NOT NULL,
    price        TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    page_url     TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    vector       BLOB NOT NULL,
    UNIQUE (tenant_id, product_id)
);
CREATE INDEX IF NOT EXISTS idx_products_tenant ON products (tenant_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Upsert inserts the product or, when the (tenant, productId) pair already
// exists, replaces the stored record so re-imports refresh rather than
// duplicate.
func (s *SQLiteStore) Upsert(ctx context.Context, p *Product) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO products (id, tenant_id, product_id, name, price, image_url, page_url, description, vector)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, product_id) DO UPDATE SET
    name = excluded.name,
    price = excluded.price,
    image_url = excluded.image_url,
    page_url = excluded.page_url,
    description = excluded.description,
    vector = excluded.vector`,
		p.ID, p.TenantID, p.ProductID, p.Name, p.Price, p.ImageURL, p.PageURL,
		p.Description, similarity.EncodeVector(p.Vector))
	if err != nil {
		return fmt.Errorf("catalog: upsert product %s: %w", p.ProductID, err)
	}
	return nil
}

// ByTenant returns every product stored for the tenant, vectors included.
func (s *SQLiteStore) ByTenant(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, tenant_id, product_id, name, price, image_url, page_url, description, vector
FROM products WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: products for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		var blob []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.ProductID, &p.Name, &p.Price,
			&p.ImageURL, &p.PageURL, &p.Description, &blob); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		vec, err := similarity.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("catalog: product %s: %w", p.ProductID, err)
		}
		p.Vector = vec
		products = append(products, p)
	}
	return products, rows.Err()
}

// Search scores every product for the tenant against the query vector and
// returns the top matches sorted descending.
func (s *SQLiteStore) Search(ctx context.Context, tenantID string, query []float32, limit int) ([]Match, error) {
	products, err := s.ByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}

	candidates := make([]similarity.Candidate, len(products))
	byID := make(map[string]Product, len(products))
	for i, p := range products {
		candidates[i] = similarity.Candidate{ID: p.ID, Vector: p.Vector}
		byID[p.ID] = p
	}

	ranked, err := similarity.RankTopK(query, candidates, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: rank products for tenant %s: %w", tenantID, err)
	}

	matches := make([]Match, 0, len(ranked))
	for _, r := range ranked {
		matches = append(matches, Match{Product: byID[r.ID], Similarity: r.Score})
	}
	return matches, nil
}

// DeleteByTenant removes the tenant's entire catalog.
func (s *SQLiteStore) DeleteByTenant(ctx context.Context, tenantID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("catalog: delete tenant %s: %w", tenantID, err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
