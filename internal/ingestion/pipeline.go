// Package ingestion implements the memory ingestion pipeline.
// It reads memory text files from disk, chunks the content, embeds each
// chunk, and upserts the results into the vector store. This pipeline is
// invoked by the `sme ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sme-labs/sme-go/internal/rag"
)

// Source describes a memory file to be ingested.
type Source struct {
	// Path is the filesystem path of the memory file to read.
	Path string

	// Agent is the agent collection this memory belongs to (axis, oria, sentinel).
	Agent string

	// Tags is an optional comma-separated tag list stored with each chunk.
	Tags string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per memory chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// Now returns the ingestion timestamp stamped on each chunk.
	// Defaults to time.Now.
	Now func() time.Time
}

// Pipeline orchestrates the read, chunk, embed, upsert flow for a set of
// memory sources.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
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
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// Ingest reads, chunks, embeds, and stores all provided sources.
// It processes sources sequentially and returns the first error encountered.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, src := range sources {
		progress(fmt.Sprintf("reading %s", src.Path))

		content, err := os.ReadFile(src.Path)
		if err != nil {
			return fmt.Errorf("ingestion: read failed for %s: %w", src.Path, err)
		}

		chunks := p.chunk(string(content))
		progress(fmt.Sprintf("chunked %s into %d chunks", src.Path, len(chunks)))
		if len(chunks) == 0 {
			continue
		}

		embeddings, err := p.embedder.Embed(ctx, chunks)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed for %s: %w", src.Path, err)
		}

		stamped := p.cfg.Now().UTC().Format(time.RFC3339)
		memories := make([]rag.Memory, 0, len(chunks))
		for i, chunk := range chunks {
			meta := map[string]string{
				"agent":       src.Agent,
				"source":      src.Path,
				"chunk_index": fmt.Sprintf("%d", i),
				"timestamp":   stamped,
			}
			if src.Tags != "" {
				meta["tags"] = src.Tags
			}
			memories = append(memories, rag.Memory{
				ID:       chunkID(src.Path, i),
				Content:  chunk,
				Metadata: meta,
			})
		}

		if err := p.store.Upsert(ctx, memories, embeddings); err != nil {
			return fmt.Errorf("ingestion: upsert failed for %s: %w", src.Path, err)
		}

		progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), src.Path))
	}

	return nil
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
func (p *Pipeline) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}

	return chunks
}

// chunkID generates a deterministic ID for a memory chunk based on its
// source path and chunk index.
func chunkID(sourcePath string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourcePath, index)))
	return fmt.Sprintf("%x", h[:16])
}
