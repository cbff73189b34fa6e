package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func openTestCatalog(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// throwingIndex reports available but errors on every call.
type throwingIndex struct{}

func (throwingIndex) IsAvailable(context.Context) bool { return true }
func (throwingIndex) Upsert(context.Context, *Product) error {
	return errors.New("index write refused")
}
func (throwingIndex) Search(context.Context, string, []float32, int) ([]Match, error) {
	return nil, errors.New("index search exploded")
}
func (throwingIndex) DeleteByTenant(context.Context, string) error {
	return errors.New("index delete refused")
}

// offlineIndex passes the availability check but its calls fail with a
// connectivity error, the shape QdrantIndex produces when the server drops
// mid-request.
type offlineIndex struct{}

func (offlineIndex) IsAvailable(context.Context) bool { return true }
func (offlineIndex) Upsert(context.Context, *Product) error {
	return fmt.Errorf("catalog: qdrant upsert p1: %w", ErrIndexUnavailable)
}
func (offlineIndex) Search(context.Context, string, []float32, int) ([]Match, error) {
	return nil, fmt.Errorf("catalog: qdrant search for tenant bot-a: %w", ErrIndexUnavailable)
}
func (offlineIndex) DeleteByTenant(context.Context, string) error {
	return fmt.Errorf("catalog: qdrant delete tenant bot-a: %w", ErrIndexUnavailable)
}

// downIndex reports unavailable; its other methods must never be reached
// through Search.
type downIndex struct{ searched bool }

func (d *downIndex) IsAvailable(context.Context) bool { return false }
func (d *downIndex) Upsert(context.Context, *Product) error {
	return errors.New("down")
}
func (d *downIndex) Search(context.Context, string, []float32, int) ([]Match, error) {
	d.searched = true
	return nil, nil
}
func (d *downIndex) DeleteByTenant(context.Context, string) error { return errors.New("down") }

// emptyIndex is healthy but holds no points.
type emptyIndex struct{}

func (emptyIndex) IsAvailable(context.Context) bool                                { return true }
func (emptyIndex) Upsert(context.Context, *Product) error                          { return nil }
func (emptyIndex) Search(context.Context, string, []float32, int) ([]Match, error) { return nil, nil }
func (emptyIndex) DeleteByTenant(context.Context, string) error                    { return nil }

func seedProduct(t *testing.T, store *SQLiteStore, tenantID, productID string, vec []float32) {
	t.Helper()
	err := store.Upsert(context.Background(), &Product{
		ID:        "rec-" + productID,
		TenantID:  tenantID,
		ProductID: productID,
		Name:      "Product " + productID,
		Vector:    vec,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", productID, err)
	}
}

func Test_Adapter_SearchFailsOverOnIndexError(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	seedProduct(t, store, "bot-a", "p1", []float32{1, 0})
	seedProduct(t, store, "bot-a", "p2", []float32{0, 1})

	a, err := NewAdapter(throwingIndex{}, store)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	matches, err := a.Search(context.Background(), "bot-a", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("index error must not propagate: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("want 2 fallback matches, got %d", len(matches))
	}
	if matches[0].Product.ProductID != "p1" {
		t.Errorf("want closest product first, got %s", matches[0].Product.ProductID)
	}
}

func Test_Adapter_SearchFailsOverOnIndexOutage(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	seedProduct(t, store, "bot-a", "p1", []float32{1, 0})

	a, err := NewAdapter(offlineIndex{}, store)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	matches, err := a.Search(context.Background(), "bot-a", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("outage must not propagate: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("want fallback match, got %d", len(matches))
	}
}

func Test_IndexErr_MarksConnectivityFailures(t *testing.T) {
	t.Parallel()

	down := indexErr("search", status.Error(codes.Unavailable, "connection refused"))
	if !errors.Is(down, ErrIndexUnavailable) {
		t.Errorf("Unavailable RPC error must wrap ErrIndexUnavailable, got %v", down)
	}

	slow := indexErr("search", status.Error(codes.DeadlineExceeded, "timed out"))
	if !errors.Is(slow, ErrIndexUnavailable) {
		t.Errorf("DeadlineExceeded RPC error must wrap ErrIndexUnavailable, got %v", slow)
	}

	bad := indexErr("search", status.Error(codes.InvalidArgument, "bad vector size"))
	if errors.Is(bad, ErrIndexUnavailable) {
		t.Errorf("query error must not be classified as an outage, got %v", bad)
	}
}

func Test_Adapter_SearchSkipsUnavailableIndex(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	seedProduct(t, store, "bot-a", "p1", []float32{1, 0})

	idx := &downIndex{}
	a, err := NewAdapter(idx, store)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	matches, err := a.Search(context.Background(), "bot-a", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("want fallback match, got %d", len(matches))
	}
	if idx.searched {
		t.Error("an unavailable index must not be queried")
	}
}

func Test_Adapter_EmptyIndexFallsBack(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	seedProduct(t, store, "bot-a", "p1", []float32{1, 0})

	a, err := NewAdapter(emptyIndex{}, store)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	matches, err := a.Search(context.Background(), "bot-a", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("empty index result must fall back, got %d matches", len(matches))
	}
}

func Test_Adapter_NilIndexUsesFallbackOnly(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	a, err := NewAdapter(nil, store)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	p := &Product{ID: "r1", TenantID: "bot-a", ProductID: "p1", Name: "Shirt", Vector: []float32{1}}
	if err := a.Upsert(context.Background(), p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	matches, err := a.Search(context.Background(), "bot-a", []float32{1}, 5)
	if err != nil || len(matches) != 1 {
		t.Fatalf("want 1 match, got %d (err %v)", len(matches), err)
	}
}

func Test_Adapter_UpsertSurvivesIndexFailure(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	a, err := NewAdapter(throwingIndex{}, store)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	p := &Product{ID: "r1", TenantID: "bot-a", ProductID: "p1", Name: "Shirt", Vector: []float32{1}}
	if err := a.Upsert(context.Background(), p); err != nil {
		t.Fatalf("index write failure must not fail the upsert: %v", err)
	}
	products, err := a.Products(context.Background(), "bot-a")
	if err != nil || len(products) != 1 {
		t.Fatalf("want product stored in fallback, got %d (err %v)", len(products), err)
	}
}

func Test_Store_ReimportUpdatesExistingProduct(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	ctx := context.Background()

	first := &Product{ID: "r1", TenantID: "bot-a", ProductID: "p1", Name: "Shirt", Price: "99", Vector: []float32{1}}
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := &Product{ID: "r2", TenantID: "bot-a", ProductID: "p1", Name: "Shirt v2", Price: "89", Vector: []float32{2}}
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	products, err := store.ByTenant(ctx, "bot-a")
	if err != nil {
		t.Fatalf("by tenant: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("re-import must update, not duplicate: got %d rows", len(products))
	}
	if products[0].Name != "Shirt v2" || products[0].Price != "89" {
		t.Errorf("row not updated: %+v", products[0])
	}
}

func Test_Store_DeleteByTenant(t *testing.T) {
	t.Parallel()
	store := openTestCatalog(t)
	ctx := context.Background()
	seedProduct(t, store, "bot-a", "p1", []float32{1})
	seedProduct(t, store, "bot-b", "p2", []float32{1})

	if err := store.DeleteByTenant(ctx, "bot-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ps, _ := store.ByTenant(ctx, "bot-a"); len(ps) != 0 {
		t.Error("bot-a catalog not cleared")
	}
	if ps, _ := store.ByTenant(ctx, "bot-b"); len(ps) != 1 {
		t.Error("bot-b catalog must survive")
	}
}

func Test_PointID_Deterministic(t *testing.T) {
	t.Parallel()
	if pointID("p1", "bot-a") != pointID("p1", "bot-a") {
		t.Error("point ID must be stable across calls")
	}
	if pointID("p1", "bot-a") == pointID("p1", "bot-b") {
		t.Error("point ID must differ across tenants")
	}
	if pointID("p1", "bot-a") == pointID("p2", "bot-a") {
		t.Error("point ID must differ across products")
	}
}
