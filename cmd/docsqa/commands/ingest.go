package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaicode/docsqa-go/internal/ingestion"
	"github.com/chaicode/docsqa-go/internal/logging"
	"github.com/chaicode/docsqa-go/internal/manifest"
)

// defaultSeedURL is the entry page the crawler starts from.
const defaultSeedURL = "https://chaidocs.vercel.app/youtube/getting-started"

// NewIngestCmd constructs the `docsqa ingest` command, which crawls the
// documentation site and indexes its pages into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	var seedURL string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Crawl and index the documentation site into the vector store",
		Long: `Crawl the documentation site starting from the seed page, extract page
text, split it into overlapping chunks, embed each chunk, and upsert the
results into the Qdrant collection.

Chunk IDs are derived from chunk content, so re-running ingestion is
idempotent: unchanged pages are skipped via a local manifest database and
changed pages overwrite their existing points.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: chai)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  GEMINI_API_KEY       Embedding API key for the default gemini backend
  EMBEDDING_*          Backend-specific overrides (see README)

The manifest database defaults to ~/.docsqa/manifest.db. Override with
DOCSQA_MANIFEST_DB, or set it to "disabled" to re-embed every page.

Examples:
  docsqa ingest
  docsqa ingest --seed-url https://chaidocs.vercel.app/youtube/getting-started
  docsqa ingest --chunk-size 800 --chunk-overlap 200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, store, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = store.Close() }()

			// Open the ingestion manifest. DOCSQA_MANIFEST_DB overrides the
			// default path (~/.docsqa/manifest.db); "disabled" skips it.
			var m manifest.Store
			dbPath := os.Getenv("DOCSQA_MANIFEST_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = manifest.DefaultDBPath()
					if err != nil {
						log.Warn("manifest: could not resolve default DB path, disabling", slog.Any("error", err))
						dbPath = ""
					}
				}
				if dbPath != "" {
					ms, msErr := manifest.Open(dbPath)
					if msErr != nil {
						log.Warn("manifest: failed to open store, disabling", slog.Any("error", msErr))
					} else {
						m = ms
						defer func() { _ = ms.Close() }()
						log.Info("manifest: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("manifest: disabled via DOCSQA_MANIFEST_DB=disabled")
			}

			crawler := ingestion.NewCrawler(&ingestion.CrawlerConfig{})

			pipeline, err := ingestion.NewPipeline(crawler, emb, store, m, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.String("seed_url", seedURL))

			summary, err := pipeline.IngestSite(ctx, seedURL)
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("pages", summary.Pages),
				slog.Int("skipped", summary.Skipped),
				slog.Int("chunks", summary.Chunks),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&seedURL, "seed-url", "u", getEnvOrDefault("INGEST_SEED_URL", defaultSeedURL), "Documentation page to start crawling from")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default 600)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in characters (default 150)")

	return cmd
}
