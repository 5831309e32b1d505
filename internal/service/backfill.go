package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/telemetry"
)

// BackfillRepository is the store surface the backfill needs.
type BackfillRepository interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.KnowledgeChunk, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
	CountMissingEmbeddings(ctx context.Context) (int64, error)
}

// BackfillConfig controls batch size and the pacing between embedding calls.
type BackfillConfig struct {
	BatchSize int
	PaceDelay time.Duration
}

func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		BatchSize: 10,
		PaceDelay: 200 * time.Millisecond,
	}
}

// BackfillReport summarizes one backfill run.
type BackfillReport struct {
	Processed int
	Failed    int
	Remaining int64
}

// BackfillService embeds knowledge chunks that were ingested without an
// embedding. Calls to the embedding provider are paced to stay inside its
// rate limits.
type BackfillService struct {
	repo      BackfillRepository
	embedding EmbeddingClient
	limiter   *rate.Limiter
	cfg       BackfillConfig
}

func NewBackfillService(repo BackfillRepository, embedding EmbeddingClient) *BackfillService {
	return NewBackfillServiceWithConfig(repo, embedding, DefaultBackfillConfig())
}

func NewBackfillServiceWithConfig(repo BackfillRepository, embedding EmbeddingClient, cfg BackfillConfig) *BackfillService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.PaceDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.PaceDelay), 1)
	}
	return &BackfillService{
		repo:      repo,
		embedding: embedding,
		limiter:   limiter,
		cfg:       cfg,
	}
}

// Run processes one batch of chunks missing embeddings. A positive limit
// overrides the configured batch size for this run. A failure on one chunk
// is counted and the run continues; the chunk stays un-embedded and is
// picked up again on the next run. Store-level failures abort the run.
func (s *BackfillService) Run(ctx context.Context, limit int) (*BackfillReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "BackfillService.Run", telemetry.SpanAttributes{
		Operation: "backfill",
	})
	defer span.End()

	if limit <= 0 {
		limit = s.cfg.BatchSize
	}

	chunks, err := s.repo.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("%w: listing chunks: %v", domain.ErrStoreUnavailable, err)
	}

	report := &BackfillReport{}
	for _, chunk := range chunks {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if err := s.processChunk(ctx, chunk); err != nil {
			log.Printf("backfill: chunk %d failed: %v", chunk.ID, err)
			report.Failed++
			continue
		}
		report.Processed++
	}

	remaining, err := s.repo.CountMissingEmbeddings(ctx)
	if err != nil {
		// The batch already ran; report it with an unknown remainder.
		log.Printf("backfill: counting remaining chunks failed: %v", err)
		remaining = -1
	}
	report.Remaining = remaining

	if report.Processed > 0 || report.Failed > 0 {
		log.Printf("backfill: processed=%d failed=%d remaining=%d", report.Processed, report.Failed, report.Remaining)
	}
	return report, nil
}

func (s *BackfillService) processChunk(ctx context.Context, chunk *domain.KnowledgeChunk) error {
	embedding, err := s.embedding.GenerateEmbedding(ctx, chunk.Content)
	if err != nil {
		return err
	}
	return s.repo.UpdateEmbedding(ctx, chunk.ID, embedding)
}
