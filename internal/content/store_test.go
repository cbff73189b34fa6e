package content

import (
	"context"
	"errors"
	"testing"

	"github.com/botforge/botcore/internal/similarity"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_SourceLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	src := &TrainingSource{ID: "src-1", TenantID: "bot-a", Type: SourceQA, RawContent: "Q: hi\nA: hello"}
	if err := s.CreateSource(ctx, src); err != nil {
		t.Fatalf("create: %v", err)
	}
	if src.Status != StatusPending {
		t.Errorf("want pending default, got %s", src.Status)
	}

	if err := s.UpdateSourceStatus(ctx, "src-1", StatusCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	sources, err := s.SourcesByTenant(ctx, "bot-a")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("want 1 source, got %d", len(sources))
	}
	if sources[0].Status != StatusCompleted {
		t.Errorf("want completed, got %s", sources[0].Status)
	}
}

func Test_Store_SourceTypeFilter(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, src := range []*TrainingSource{
		{ID: "s1", TenantID: "bot-a", Type: SourceQA, RawContent: "qa"},
		{ID: "s2", TenantID: "bot-a", Type: SourceText, RawContent: "text"},
		{ID: "s3", TenantID: "bot-a", Type: SourceInfo, RawContent: "info"},
	} {
		if err := s.CreateSource(ctx, src); err != nil {
			t.Fatalf("create %s: %v", src.ID, err)
		}
	}

	qa, err := s.SourcesByTenant(ctx, "bot-a", SourceQA)
	if err != nil {
		t.Fatalf("qa sources: %v", err)
	}
	if len(qa) != 1 || qa[0].ID != "s1" {
		t.Errorf("qa filter: got %v", qa)
	}

	mixed, err := s.SourcesByTenant(ctx, "bot-a", SourceText, SourceInfo)
	if err != nil {
		t.Fatalf("mixed sources: %v", err)
	}
	if len(mixed) != 2 {
		t.Errorf("want 2 sources, got %d", len(mixed))
	}
}

func Test_Store_ChunkRoundTripPreservesVector(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	vec := []float32{0.25, -1.5, 3.75, 0}
	chunks := []Chunk{{ID: "c1", TenantID: "bot-a", SourceID: "s1", Text: "hello", Vector: vec}}
	if err := s.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.ChunksByTenant(ctx, "bot-a")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(got))
	}
	for i, f := range vec {
		if got[0].Vector[i] != f {
			t.Errorf("vector[%d]: want %v, got %v", i, f, got[0].Vector[i])
		}
	}
}

func Test_Store_TenantIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertChunks(ctx, []Chunk{
		{ID: "ca", TenantID: "bot-a", SourceID: "s", Text: "a", Vector: []float32{1}},
	}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := s.InsertChunks(ctx, []Chunk{
		{ID: "cb", TenantID: "bot-b", SourceID: "s", Text: "b", Vector: []float32{2}},
	}); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	got, err := s.ChunksByTenant(ctx, "bot-a")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(got) != 1 || got[0].Text != "a" {
		t.Errorf("tenant isolation failed: %v", got)
	}
}

func Test_Store_InsertChunksRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InsertChunks(ctx, []Chunk{
		{ID: "c1", TenantID: "bot-a", SourceID: "s", Text: "x", Vector: []float32{1, 2}},
		{ID: "c2", TenantID: "bot-a", SourceID: "s", Text: "y", Vector: []float32{1, 2, 3}},
	})
	var dimErr *similarity.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("want *similarity.DimensionError, got %v", err)
	}

	// A later batch with a different dimension from what is stored must also fail.
	if err := s.InsertChunks(ctx, []Chunk{
		{ID: "c3", TenantID: "bot-a", SourceID: "s", Text: "z", Vector: []float32{1, 2}},
	}); err != nil {
		t.Fatalf("first valid insert: %v", err)
	}
	err = s.InsertChunks(ctx, []Chunk{
		{ID: "c4", TenantID: "bot-a", SourceID: "s", Text: "w", Vector: []float32{1, 2, 3}},
	})
	if !errors.As(err, &dimErr) {
		t.Fatalf("want *similarity.DimensionError for stored mismatch, got %v", err)
	}
}

func Test_Store_DeleteSourceRemovesChunks(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	src := &TrainingSource{ID: "src-1", TenantID: "bot-a", Type: SourceText, RawContent: "body"}
	if err := s.CreateSource(ctx, src); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.InsertChunks(ctx, []Chunk{
		{ID: "c1", TenantID: "bot-a", SourceID: "src-1", Text: "body", Vector: []float32{1}},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.DeleteSource(ctx, "src-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	chunks, err := s.ChunksByTenant(ctx, "bot-a")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("want 0 chunks after source delete, got %d", len(chunks))
	}
	sources, err := s.SourcesByTenant(ctx, "bot-a")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("want 0 sources after delete, got %d", len(sources))
	}
}

func Test_Store_DeleteTenant(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, tenant := range []string{"bot-a", "bot-b"} {
		if err := s.CreateSource(ctx, &TrainingSource{ID: "src-" + tenant, TenantID: tenant, Type: SourceText, RawContent: "x"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.InsertChunks(ctx, []Chunk{
			{ID: "c-" + tenant, TenantID: tenant, SourceID: "src-" + tenant, Text: "x", Vector: []float32{1}},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := s.DeleteTenant(ctx, "bot-a"); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}

	if chunks, _ := s.ChunksByTenant(ctx, "bot-a"); len(chunks) != 0 {
		t.Errorf("bot-a chunks not deleted")
	}
	if chunks, _ := s.ChunksByTenant(ctx, "bot-b"); len(chunks) != 1 {
		t.Errorf("bot-b chunks must survive")
	}
}
