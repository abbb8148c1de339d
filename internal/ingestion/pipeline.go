// Package ingestion implements the documentation ingestion pipeline.
// It crawls the documentation site from a seed page, extracts and chunks the
// content of every discovered page, embeds each chunk, and upserts the
// results into the vector store. A SQLite manifest records a content hash per
// page so that re-running ingestion skips pages that have not changed.
// This pipeline is invoked by the `docsqa ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/chaicode/docsqa-go/internal/logging"
	"github.com/chaicode/docsqa-go/internal/manifest"
	"github.com/chaicode/docsqa-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 600 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive
	// chunks. Defaults to 150 if zero.
	ChunkOverlap int
}

// Summary reports what a site ingestion run did.
type Summary struct {
	// Pages is the number of pages fetched and ingested.
	Pages int

	// Skipped is the number of pages skipped because their content was unchanged.
	Skipped int

	// Chunks is the total number of chunks upserted.
	Chunks int
}

// Pipeline orchestrates the crawl → extract → chunk → embed → upsert flow
// for a documentation site.
type Pipeline struct {
	// crawler discovers and fetches documentation pages.
	crawler *Crawler

	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// manifest records per-page content hashes. May be nil, in which case
	// every page is re-ingested unconditionally.
	manifest manifest.Store

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// The manifest store may be nil to disable change detection.
func NewPipeline(crawler *Crawler, embedder rag.Embedder, store rag.VectorStore, m manifest.Store, cfg *Config) (*Pipeline, error) {
	if crawler == nil {
		return nil, fmt.Errorf("ingestion: crawler must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 600
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 150
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 4
	}

	return &Pipeline{
		crawler:  crawler,
		embedder: embedder,
		store:    store,
		manifest: m,
		cfg:      cfg,
	}, nil
}

// IngestSite crawls the documentation site starting at seedURL and ingests
// every discovered page. Pages are processed sequentially; the first error
// aborts the run so a partially-failed crawl is visible rather than silently
// incomplete.
func (p *Pipeline) IngestSite(ctx context.Context, seedURL string) (*Summary, error) {
	log := logging.FromContext(ctx)

	urls, err := p.crawler.Discover(ctx, seedURL)
	if err != nil {
		return nil, err
	}
	log.Info("discovered documentation pages",
		slog.String("seed", seedURL),
		slog.Int("pages", len(urls)),
	)

	summary := &Summary{}
	for _, pageURL := range urls {
		chunks, skipped, err := p.ingestPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if skipped {
			summary.Skipped++
			continue
		}
		summary.Pages++
		summary.Chunks += chunks
	}

	log.Info("ingestion complete",
		slog.Int("pages", summary.Pages),
		slog.Int("skipped", summary.Skipped),
		slog.Int("chunks", summary.Chunks),
	)
	return summary, nil
}

// ingestPage fetches, extracts, chunks, embeds, and stores one page. It
// returns skipped=true when the manifest shows the page content is unchanged.
func (p *Pipeline) ingestPage(ctx context.Context, pageURL string) (chunks int, skipped bool, err error) {
	log := logging.FromContext(ctx)

	html, err := p.crawler.Fetch(ctx, pageURL)
	if err != nil {
		return 0, false, fmt.Errorf("ingestion: fetch failed for %s: %w", pageURL, err)
	}

	page, err := Extract(html)
	if err != nil {
		return 0, false, fmt.Errorf("ingestion: extract failed for %s: %w", pageURL, err)
	}
	if page.Text == "" {
		log.Warn("page has no extractable text, skipping", slog.String("url", pageURL))
		return 0, true, nil
	}

	hash := contentHash(page.Text)
	if p.manifest != nil {
		prev, ok, err := p.manifest.Lookup(ctx, pageURL)
		if err != nil {
			return 0, false, err
		}
		if ok && prev.ContentHash == hash {
			log.Debug("page unchanged, skipping", slog.String("url", pageURL))
			return 0, true, nil
		}
	}

	texts := Chunk(page.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, false, fmt.Errorf("ingestion: embedding failed for %s: %w", pageURL, err)
	}

	docs := make([]rag.Document, 0, len(texts))
	for _, text := range texts {
		docs = append(docs, rag.Document{
			ID:          chunkID(text),
			Content:     text,
			Source:      pageURL,
			Title:       page.Title,
			Description: page.Description,
		})
	}

	if err := p.store.Upsert(ctx, docs, embeddings); err != nil {
		return 0, false, fmt.Errorf("ingestion: upsert failed for %s: %w", pageURL, err)
	}

	if p.manifest != nil {
		err := p.manifest.Record(ctx, manifest.Page{
			URL:         pageURL,
			ContentHash: hash,
			Chunks:      len(docs),
		})
		if err != nil {
			return 0, false, err
		}
	}

	log.Info("ingested page",
		slog.String("url", pageURL),
		slog.String("title", page.Title),
		slog.Int("chunks", len(docs)),
	)
	return len(docs), false, nil
}

// Chunk splits text into overlapping windows of size characters, stepping by
// size-overlap. The final window may be shorter. Windows are measured in
// runes, not bytes — a boundary must never split a multibyte character, since
// chunk strings travel through gRPC and JSON payloads that require valid UTF-8.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// contentHash returns the hex-encoded SHA-256 of the extracted page text.
func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// chunkID derives a UUID-formatted point ID from the chunk content. Identical
// content always maps to the same ID, so re-ingesting an unchanged page
// overwrites its points instead of growing the collection.
func chunkID(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
