package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/botforge/botcore/internal/content"
	"github.com/botforge/botcore/internal/embedder"
	"github.com/botforge/botcore/internal/logging"
)

// NewTrainCmd constructs the `botcore train` command, which adds a training
// source to a tenant's knowledge and processes it into embedded chunks.
func NewTrainCmd() *cobra.Command {
	var tenant string
	var srcType string
	var text string
	var file string
	var url string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Add a training source to a tenant's knowledge",
		Long: `Add a training source for a tenant and process it immediately.

Source types:
  text   pasted free text (--text or --file)
  file   an uploaded document (--file)
  url    a web page fetched at processing time (--url)
  qa     curated "Q: ... A: ..." pairs, used by the direct matcher (--text or --file)
  info   labeled business facts like "Phone: 03-1234567" (--text or --file)

Examples:
  botcore train --tenant bot-a --type text --text "We ship worldwide within 5 days."
  botcore train --tenant bot-a --type qa --file faq.txt
  botcore train --tenant bot-a --type url --url https://shop.example.com/about`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenant == "" {
				return fmt.Errorf("train: --tenant is required")
			}
			raw, err := resolveTrainingContent(srcType, text, file, url)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("train: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("train: failed to initialise embedder: %w", err)
			}

			dbPath, err := resolveDBPath()
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			contentStore, err := content.Open(dbPath)
			if err != nil {
				return fmt.Errorf("train: content store: %w", err)
			}
			defer func() { _ = contentStore.Close() }()

			pipeline, err := content.NewPipeline(emb, contentStore, nil)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}

			src := &content.TrainingSource{
				ID:         uuid.NewString(),
				TenantID:   tenant,
				Type:       content.SourceType(srcType),
				RawContent: raw,
				Status:     content.StatusPending,
				CreatedAt:  time.Now().UTC(),
			}
			if err := contentStore.CreateSource(ctx, src); err != nil {
				return fmt.Errorf("train: create source: %w", err)
			}

			log.Info("processing training source",
				slog.String("tenant_id", tenant),
				slog.String("source_id", src.ID),
				slog.String("type", srcType),
			)
			if err := pipeline.Process(ctx, src); err != nil {
				return fmt.Errorf("train: %w", err)
			}

			fmt.Printf("trained source %s for tenant %s\n", src.ID, tenant)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant (bot) identifier")
	cmd.Flags().StringVar(&srcType, "type", "text", "Source type: text, file, url, qa, info")
	cmd.Flags().StringVar(&text, "text", "", "Inline source text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a file containing the source text")
	cmd.Flags().StringVarP(&url, "url", "u", "", "URL to fetch at processing time (type url)")

	return cmd
}

// resolveTrainingContent validates the type/flag combination and returns the
// raw content to store.
func resolveTrainingContent(srcType, text, file, url string) (string, error) {
	switch content.SourceType(srcType) {
	case content.SourceURL:
		if url == "" {
			return "", fmt.Errorf("--url is required for type url")
		}
		return url, nil
	case content.SourceText, content.SourceFile, content.SourceQA, content.SourceInfo:
		if text != "" {
			return text, nil
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return "", fmt.Errorf("read %s: %w", file, err)
			}
			return string(data), nil
		}
		return "", fmt.Errorf("--text or --file is required for type %s", srcType)
	default:
		return "", fmt.Errorf("unknown source type %q (want text, file, url, qa, or info)", srcType)
	}
}
