// Package rag defines the interfaces the signal memory engine uses for
// retrieval: vector storage, memory retrieval, and embedding. Concrete
// implementations (Qdrant, etc.) satisfy these interfaces so the engine
// layer never depends on a specific backend.
package rag

import (
	"context"
)

// Memory is a unit of stored or retrieved memory text.
type Memory struct {
	// ID is the unique identifier for this memory chunk.
	ID string

	// Content is the raw text of the chunk.
	Content string

	// Metadata holds arbitrary key-value pairs stored alongside the chunk
	// (timestamp, agent, source, tags).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval. Zero value
	// means the score was not computed (e.g. on the ingest path).
	Score float64
}

// VectorStore is the interface for persisting and searching memory embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of memories with their pre-computed
	// embeddings. The embeddings slice must be parallel to memories:
	// embeddings[i] is the vector for memories[i].
	Upsert(ctx context.Context, memories []Memory, embeddings [][]float32) error

	// Search performs a semantic similarity search and returns the top-k
	// most similar memories for the given query embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Memory, error)

	// Delete removes memories by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface the engine uses to fetch similar
// memories for a query. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most similar memories for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]Memory, error)
}
