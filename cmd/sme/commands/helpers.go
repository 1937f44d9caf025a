package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sme-labs/sme-go/internal/config"
	"github.com/sme-labs/sme-go/internal/embedder"
	"github.com/sme-labs/sme-go/internal/engine"
	"github.com/sme-labs/sme-go/internal/rag"
)

// agentRoles is the fixed ordering of the engine's agent memory stores.
// ENABLED_AGENTS toggles membership in fan-outs without changing the list.
var agentRoles = []string{"axis", "oria", "sentinel"}

// memoryStores bundles the default retriever, per-agent stores, and the
// shared Qdrant connection built by buildMemoryStores.
type memoryStores struct {
	// retriever searches the default (combined) memory collection.
	retriever rag.Retriever
	// agents are the per-agent stores in agentRoles order.
	agents []engine.AgentStore
	// vectorStores maps each agent role to its raw vector store, used by
	// the ingest path.
	vectorStores map[string]rag.VectorStore
	// embedder is the environment-selected embedding backend.
	embedder rag.Embedder
	// qdrant is the store over the default collection; its Client() is
	// shared by every agent collection and closed once via close.
	qdrant *rag.QdrantStore
	// close releases the shared Qdrant connection.
	close func()
}

// buildMemoryStores connects to Qdrant, ensures the default collection and
// one collection per agent role, and wraps each with a retriever over the
// environment-selected embedder.
func buildMemoryStores(ctx context.Context, log *slog.Logger) (*memoryStores, error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embModel := getEnvOrDefault("EMBEDDING_MODEL", "")
	if embModel != "" {
		embedder.WarnIfChatModel(log, embModel)
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "openai"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "sme-memory")

	base, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)

	retriever, err := rag.NewRetriever(emb, base, 0)
	if err != nil {
		base.Close()
		return nil, err
	}

	enabled := config.EnabledAgents(os.Getenv("ENABLED_AGENTS"))
	agents := make([]engine.AgentStore, 0, len(agentRoles))
	vectorStores := make(map[string]rag.VectorStore, len(agentRoles))
	for _, role := range agentRoles {
		store, err := rag.NewQdrantStoreWithClient(ctx, base.Client(), &rag.QdrantConfig{
			Collection: fmt.Sprintf("%s-%s", collection, role),
			VectorSize: vectorSize,
		})
		if err != nil {
			base.Close()
			return nil, fmt.Errorf("failed to prepare collection for agent %s: %w", role, err)
		}
		ret, err := rag.NewRetriever(emb, store, 0)
		if err != nil {
			base.Close()
			return nil, err
		}
		agents = append(agents, engine.AgentStore{
			Role:      role,
			Retriever: ret,
			Enabled:   enabled[role],
		})
		vectorStores[role] = store
	}

	return &memoryStores{
		retriever:    retriever,
		agents:       agents,
		vectorStores: vectorStores,
		embedder:     emb,
		qdrant:       base,
		close:        func() { _ = base.Close() },
	}, nil
}

// resolveListenAddr applies SME_HOST and SME_PORT to the listen address.
// An explicitly set flag always wins over the environment.
func resolveListenAddr(cmd *cobra.Command, host string, port int) (string, int) {
	if !cmd.Flags().Changed("host") {
		host = getEnvOrDefault("SME_HOST", host)
	}
	if !cmd.Flags().Changed("port") {
		port = getEnvInt("SME_PORT", port)
	}
	return host, port
}

// getEnvOrDefault returns the env var value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
