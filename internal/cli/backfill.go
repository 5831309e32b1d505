package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/diviner-ai/diviner/internal/ai"
	"github.com/diviner-ai/diviner/internal/config"
	"github.com/diviner-ai/diviner/internal/database"
	"github.com/diviner-ai/diviner/internal/repository"
	"github.com/diviner-ai/diviner/internal/service"
)

// BackfillCmd returns the backfill command
func BackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed knowledge chunks missing embeddings",
		Long:  "Run embedding backfill batches until every knowledge chunk has an embedding",
		RunE:  runBackfill,
	}

	cmd.Flags().Bool("once", false, "Process a single batch and exit")

	return cmd
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasAI() {
		return fmt.Errorf("backfill requires AI credentials (DIVINER_AI_API_KEY)")
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	client := ai.NewClient(ai.Config{
		APIKey:              cfg.AIAPIKey,
		BaseURL:             cfg.AIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})

	svc := service.NewBackfillServiceWithConfig(
		repository.NewKnowledgeRepository(pool),
		client,
		service.BackfillConfig{
			BatchSize: cfg.BackfillBatchSize,
			PaceDelay: cfg.BackfillPaceDelay,
		},
	)

	once, _ := cmd.Flags().GetBool("once")
	total := 0
	for {
		report, err := svc.Run(ctx, 0)
		if err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}
		total += report.Processed

		if once || report.Remaining == 0 {
			log.Printf("backfill done: %d chunks embedded, %d remaining", total, report.Remaining)
			return nil
		}
		if report.Processed == 0 && report.Failed > 0 {
			return fmt.Errorf("backfill stalled: %d chunks keep failing", report.Failed)
		}
	}
}
