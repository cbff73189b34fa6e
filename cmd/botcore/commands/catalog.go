package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/botforge/botcore/internal/catalog"
	"github.com/botforge/botcore/internal/embedder"
	"github.com/botforge/botcore/internal/logging"
)

// NewCatalogCmd constructs the `botcore catalog` command group for product
// catalog management.
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage a tenant's product catalog",
	}
	cmd.AddCommand(newCatalogImportCmd(), newCatalogClearCmd())
	return cmd
}

// newCatalogImportCmd constructs `botcore catalog import`, which embeds and
// indexes a product feed file.
func newCatalogImportCmd() *cobra.Command {
	var tenant string
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON product feed for a tenant",
		Long: `Import products from a JSON feed file.

The feed is a JSON array of objects with productId, name, price, imageUrl,
pageUrl, and description fields. Size variants of the same product
("Blue Jeans S", "Blue Jeans L") are deduplicated to one record. Products
are embedded in small rate-limited batches so provider quotas survive
large feeds.

Example:
  botcore catalog import --tenant bot-a --file products.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenant == "" {
				return fmt.Errorf("catalog import: --tenant is required")
			}
			if file == "" {
				return fmt.Errorf("catalog import: --file is required")
			}

			items, err := catalog.ParseFile(file)
			if err != nil {
				return fmt.Errorf("catalog import: %w", err)
			}
			log.Info("parsed product feed", slog.String("file", file), slog.Int("items", len(items)))

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("catalog import: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("catalog import: failed to initialise embedder: %w", err)
			}

			dbPath, err := resolveDBPath()
			if err != nil {
				return fmt.Errorf("catalog import: %w", err)
			}
			adapter, _, closers, err := buildCatalogAdapter(ctx, dbPath, log)
			defer func() {
				for i := len(closers) - 1; i >= 0; i-- {
					_ = closers[i]()
				}
			}()
			if err != nil {
				return fmt.Errorf("catalog import: %w", err)
			}

			importer, err := catalog.NewImporter(emb, adapter)
			if err != nil {
				return fmt.Errorf("catalog import: %w", err)
			}

			summary, err := importer.Import(ctx, tenant, items)
			if err != nil {
				return fmt.Errorf("catalog import: %w", err)
			}

			fmt.Printf("imported %d products for tenant %s (%d deduped, %d failed)\n",
				summary.Processed, tenant, summary.Deduped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant (bot) identifier")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the JSON product feed")

	return cmd
}

// newCatalogClearCmd constructs `botcore catalog clear`, which removes all of
// a tenant's products from both stores.
func newCatalogClearCmd() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all products for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenant == "" {
				return fmt.Errorf("catalog clear: --tenant is required")
			}

			dbPath, err := resolveDBPath()
			if err != nil {
				return fmt.Errorf("catalog clear: %w", err)
			}
			adapter, _, closers, err := buildCatalogAdapter(ctx, dbPath, log)
			defer func() {
				for i := len(closers) - 1; i >= 0; i-- {
					_ = closers[i]()
				}
			}()
			if err != nil {
				return fmt.Errorf("catalog clear: %w", err)
			}

			if err := adapter.Clear(ctx, tenant); err != nil {
				return fmt.Errorf("catalog clear: %w", err)
			}
			fmt.Printf("cleared catalog for tenant %s\n", tenant)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant (bot) identifier")

	return cmd
}
