package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sme-labs/sme-go/internal/ingestion"
	"github.com/sme-labs/sme-go/internal/logging"
)

// NewIngestCmd constructs the `sme ingest` command, which loads memory text
// files into the per-agent vector stores.
func NewIngestCmd() *cobra.Command {
	var agent string
	var tags string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest memory files into the agent vector stores",
		Long: `Read, chunk, embed, and index memory text files into Qdrant.

Each file is split into overlapping chunks, embedded with the configured
embedding backend, and upserted into the target agent's collection. The
agent is inferred from the file path (memories/<agent>/<file>) unless
--agent is given; --agent forces one collection for every file.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name prefix (default: sme-memory)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: openai)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  sme ingest memories/axis/journal.txt
  sme ingest --agent oria notes/*.md
  sme ingest --tags "biometric,sleep" memories/sentinel/*.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			sources, err := ingestion.Expand(args, agent, tags)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(sources) == 0 {
				return fmt.Errorf("ingest: no .txt, .md, or .log files matched")
			}

			stores, err := buildMemoryStores(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer stores.close()

			// Group sources by agent so each pipeline writes one collection.
			byAgent := make(map[string][]ingestion.Source)
			for _, src := range sources {
				byAgent[src.Agent] = append(byAgent[src.Agent], src)
			}

			for role, group := range byAgent {
				store, ok := stores.vectorStores[role]
				if !ok {
					return fmt.Errorf("ingest: unknown agent %q", role)
				}

				pipeline, err := ingestion.NewPipeline(stores.embedder, store, nil)
				if err != nil {
					return fmt.Errorf("ingest: failed to create pipeline: %w", err)
				}

				log.Info("starting ingestion",
					slog.String("agent", role),
					slog.Int("sources", len(group)),
				)
				if err := pipeline.Ingest(ctx, group, func(msg string) {
					log.Info(msg)
				}); err != nil {
					return fmt.Errorf("ingest: pipeline failed for agent %s: %w", role, err)
				}
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&agent, "agent", "a", "", "Target agent collection (axis, oria, sentinel); inferred from path when omitted")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags stored with every chunk")

	return cmd
}
