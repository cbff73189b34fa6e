package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/botforge/botcore/internal/catalog"
	"github.com/botforge/botcore/internal/composer"
	"github.com/botforge/botcore/internal/content"
	"github.com/botforge/botcore/internal/directmatch"
	"github.com/botforge/botcore/internal/embedder"
	"github.com/botforge/botcore/internal/notify"
	"github.com/botforge/botcore/internal/provider"
	"github.com/botforge/botcore/internal/rag"
	"github.com/botforge/botcore/internal/server"
	"github.com/botforge/botcore/internal/store"
	"github.com/botforge/botcore/internal/vision"
)

// runtime bundles the fully wired pipeline plus everything the caller needs
// to probe and tear it down.
type runtime struct {
	// composer is the assembled chat pipeline.
	composer *composer.Composer
	// embedder is exposed for readiness probes.
	embedder rag.Embedder
	// qdrant is the product index, nil when QDRANT_HOST is unset.
	qdrant *catalog.QdrantIndex
	// closers are run in reverse order on shutdown.
	closers []func() error
}

// close releases all resources owned by the runtime.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// pingers returns the readiness probes for the wired dependencies.
func (rt *runtime) pingers() []server.Pinger {
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	ps := []server.Pinger{server.NewEmbedderPinger(rt.embedder, embBackend)}
	if rt.qdrant != nil {
		ps = append(ps, server.NewQdrantPinger(rt.qdrant.Client()))
	}
	return ps
}

// resolveDBPath returns the SQLite path shared by all stores. BOTCORE_DB
// overrides the default (~/.botcore/history.db).
func resolveDBPath() (string, error) {
	if p := os.Getenv("BOTCORE_DB"); p != "" {
		return p, nil
	}
	return store.DefaultDBPath()
}

// buildQdrantIndex connects to Qdrant when QDRANT_HOST is set. A missing host
// means the catalog runs on the SQLite fallback alone.
func buildQdrantIndex(ctx context.Context, log *slog.Logger) (*catalog.QdrantIndex, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		log.Info("qdrant: QDRANT_HOST not set, product search uses SQLite only")
		return nil, nil
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	idx, err := catalog.NewQdrantIndex(ctx, &catalog.QdrantConfig{
		Host:       host,
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "botcore-products"),
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	log.Info("qdrant index ready",
		slog.String("host", host),
		slog.String("collection", getEnvOrDefault("QDRANT_COLLECTION", "botcore-products")),
	)
	return idx, nil
}

// buildCatalogAdapter wires the dual product store: Qdrant primary (when
// configured) with the SQLite catalog as the authoritative fallback.
func buildCatalogAdapter(ctx context.Context, dbPath string, log *slog.Logger) (*catalog.Adapter, *catalog.QdrantIndex, []func() error, error) {
	var closers []func() error

	fallback, err := catalog.OpenStore(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("catalog store: %w", err)
	}
	closers = append(closers, fallback.Close)

	idx, err := buildQdrantIndex(ctx, log)
	if err != nil {
		// Qdrant being down at startup is not fatal: the adapter fails over.
		log.Warn("qdrant unavailable at startup, continuing on SQLite fallback", slog.Any("error", err))
		idx = nil
	}
	var index catalog.Index
	if idx != nil {
		index = idx
		closers = append(closers, idx.Close)
	}

	adapter, err := catalog.NewAdapter(index, fallback)
	if err != nil {
		return nil, nil, closers, err
	}
	return adapter, idx, closers, nil
}

// buildComposer wires the full chat pipeline from the environment.
func buildComposer(ctx context.Context, log *slog.Logger) (*runtime, error) {
	rt := &runtime{}

	providerCfg, err := provider.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("model provider config: %w", err)
	}
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("model provider: %w", err)
	}
	client, err := provider.NewClient(chatModel, providerCfg.Backend)
	if err != nil {
		return nil, err
	}
	log.Info("provider initialised", slog.String("backend", string(providerCfg.Backend)))

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	rt.embedder = emb

	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	contentStore, err := content.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}
	rt.closers = append(rt.closers, contentStore.Close)

	conversations, err := store.Open(dbPath)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("conversation store: %w", err)
	}
	rt.closers = append(rt.closers, conversations.Close)

	adapter, idx, catalogClosers, err := buildCatalogAdapter(ctx, dbPath, log)
	rt.closers = append(rt.closers, catalogClosers...)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.qdrant = idx

	direct, err := directmatch.New(contentStore, &directmatch.Config{
		Threshold:  getEnvFloat("DIRECT_MATCH_THRESHOLD", 0),
		SelectBest: os.Getenv("DIRECT_MATCH_SELECT_BEST") == "true",
	})
	if err != nil {
		rt.close()
		return nil, err
	}

	retriever, err := rag.NewRetriever(emb, contentStore, composer.DefaultTopK)
	if err != nil {
		rt.close()
		return nil, err
	}

	imageMatcher, err := vision.NewMatcher(client, emb, adapter)
	if err != nil {
		rt.close()
		return nil, err
	}

	var notifier notify.Notifier
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		wh, whErr := notify.NewWebhookNotifier(url)
		if whErr != nil {
			rt.close()
			return nil, whErr
		}
		notifier = wh
		log.Info("webhook notifier enabled", slog.String("url", url))
	}

	comp, err := composer.New(composer.Deps{
		Direct:        direct,
		Retriever:     retriever,
		ImageMatcher:  imageMatcher,
		Products:      adapter,
		Embedder:      emb,
		Generator:     client,
		Conversations: conversations,
		Notifier:      notifier,
	}, nil)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.composer = comp
	return rt, nil
}

// getEnvOrDefault returns the env value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env value parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the env value parsed as float64, or fallback when unset
// or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
