package content

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/botforge/botcore/internal/similarity"
)

// Store persists training sources and their embedded chunks, scoped by
// tenant. Implementations must be safe for concurrent use.
type Store interface {
	// CreateSource persists a new training source. A zero CreatedAt is set to now.
	CreateSource(ctx context.Context, src *TrainingSource) error
	// UpdateSourceStatus transitions a source to the given status.
	UpdateSourceStatus(ctx context.Context, id string, status SourceStatus) error
	// SourcesByTenant returns the tenant's sources, optionally filtered by type.
	SourcesByTenant(ctx context.Context, tenantID string, types ...SourceType) ([]TrainingSource, error)
	// DeleteSource removes a source and all chunks derived from it.
	DeleteSource(ctx context.Context, id string) error
	// InsertChunks persists a batch of embedded chunks. All vectors in the
	// batch, and any vectors already stored for the tenant, must share one
	// dimension — a mismatch is rejected with *similarity.DimensionError.
	InsertChunks(ctx context.Context, chunks []Chunk) error
	// ChunksByTenant returns every embedded chunk for the tenant.
	ChunksByTenant(ctx context.Context, tenantID string) ([]Chunk, error)
	// DeleteTenant removes all sources and chunks for the tenant.
	DeleteTenant(ctx context.Context, tenantID string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the botcore database.
// It resolves to ~/.botcore/botcore.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("content: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".botcore")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("content: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "botcore.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("content: open %s: %w", path, err)
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

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS training_sources (
    id           TEXT    PRIMARY KEY,
    tenant_id    TEXT    NOT NULL,
    type         TEXT    NOT NULL CHECK(type IN ('url','text','file','qa','info')),
    raw_content  TEXT    NOT NULL,
    status       TEXT    NOT NULL CHECK(status IN ('pending','processing','completed','failed')),
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_sources_tenant_type
    ON training_sources (tenant_id, type);

CREATE TABLE IF NOT EXISTS chunks (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    source_id  TEXT NOT NULL,
    text       TEXT NOT NULL,
    vector     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON chunks (tenant_id);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (source_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("content: migrate: %w", err)
	}
	return nil
}

// CreateSource persists a new training source.
func (s *SQLiteStore) CreateSource(ctx context.Context, src *TrainingSource) error {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	if src.Status == "" {
		src.Status = StatusPending
	}
	const q = `INSERT INTO training_sources (id, tenant_id, type, raw_content, status, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		src.ID, src.TenantID, string(src.Type), src.RawContent, string(src.Status), src.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("content: create source: %w", err)
	}
	return nil
}

// UpdateSourceStatus transitions a source to the given status.
func (s *SQLiteStore) UpdateSourceStatus(ctx context.Context, id string, status SourceStatus) error {
	const q = `UPDATE training_sources SET status = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(status), id); err != nil {
		return fmt.Errorf("content: update status: %w", err)
	}
	return nil
}

// SourcesByTenant returns the tenant's sources, optionally filtered by type.
func (s *SQLiteStore) SourcesByTenant(ctx context.Context, tenantID string, types ...SourceType) ([]TrainingSource, error) {
	q := `SELECT id, tenant_id, type, raw_content, status, created_at
FROM training_sources WHERE tenant_id = ?`
	args := []any{tenantID}
	if len(types) > 0 {
		q += ` AND type IN (?` //nolint:goconst
		args = append(args, string(types[0]))
		for _, t := range types[1:] {
			q += `,?`
			args = append(args, string(t))
		}
		q += `)`
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("content: sources: %w", err)
	}
	defer rows.Close()

	var sources []TrainingSource
	for rows.Next() {
		var src TrainingSource
		var typ, status string
		var ts int64
		if err := rows.Scan(&src.ID, &src.TenantID, &typ, &src.RawContent, &status, &ts); err != nil {
			return nil, fmt.Errorf("content: sources scan: %w", err)
		}
		src.Type = SourceType(typ)
		src.Status = SourceStatus(status)
		src.CreatedAt = time.Unix(ts, 0)
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: sources rows: %w", err)
	}
	return sources, nil
}

// DeleteSource removes a source and all chunks derived from it in one
// transaction, so a failed delete never strands orphan chunks.
func (s *SQLiteStore) DeleteSource(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("content: delete source: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("content: delete source chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("content: delete source: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("content: delete source: commit: %w", err)
	}
	return nil
}

// InsertChunks persists a batch of embedded chunks after verifying that every
// vector in the batch shares the tenant's stored dimension.
func (s *SQLiteStore) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Vector)
	for _, c := range chunks[1:] {
		if len(c.Vector) != dim {
			return &similarity.DimensionError{Want: dim, Got: len(c.Vector)}
		}
	}

	// Guard against mixing embedding models: the batch dimension must match
	// whatever is already stored for this tenant.
	var stored sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT length(vector)/4 FROM chunks WHERE tenant_id = ? LIMIT 1`,
		chunks[0].TenantID).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("content: insert chunks: dimension probe: %w", err)
	}
	if stored.Valid && int(stored.Int64) != dim {
		return &similarity.DimensionError{Want: int(stored.Int64), Got: dim}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("content: insert chunks: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// INSERT OR REPLACE so reprocessing a source overwrites its chunks
	// (chunk IDs are deterministic per source+index).
	const q = `INSERT OR REPLACE INTO chunks (id, tenant_id, source_id, text, vector) VALUES (?, ?, ?, ?, ?)`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, q, c.ID, c.TenantID, c.SourceID, c.Text,
			similarity.EncodeVector(c.Vector)); err != nil {
			return fmt.Errorf("content: insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("content: insert chunks: commit: %w", err)
	}
	return nil
}

// ChunksByTenant returns every embedded chunk for the tenant.
func (s *SQLiteStore) ChunksByTenant(ctx context.Context, tenantID string) ([]Chunk, error) {
	const q = `SELECT id, tenant_id, source_id, text, vector FROM chunks WHERE tenant_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("content: chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SourceID, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("content: chunks scan: %w", err)
		}
		c.Vector, err = similarity.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("content: chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: chunks rows: %w", err)
	}
	return chunks, nil
}

// DeleteTenant removes all sources and chunks for the tenant.
func (s *SQLiteStore) DeleteTenant(ctx context.Context, tenantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("content: delete tenant: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("content: delete tenant chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_sources WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("content: delete tenant sources: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("content: delete tenant: commit: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("content: close: %w", err)
	}
	return nil
}
