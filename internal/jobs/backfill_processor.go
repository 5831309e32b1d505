package jobs

import (
	"context"
	"fmt"

	"github.com/diviner-ai/diviner/internal/service"
)

// BackfillRunner runs one backfill batch. A limit of zero uses the
// configured batch size.
type BackfillRunner interface {
	Run(ctx context.Context, limit int) (*service.BackfillReport, error)
}

// BackfillProcessor adapts the embedding backfill to the worker loop: each
// poll tick processes one batch of chunks missing embeddings.
type BackfillProcessor struct {
	runner BackfillRunner
}

func NewBackfillProcessor(runner BackfillRunner) *BackfillProcessor {
	return &BackfillProcessor{runner: runner}
}

// ProcessJobs implements the JobProcessor interface
func (p *BackfillProcessor) ProcessJobs(ctx context.Context) error {
	if _, err := p.runner.Run(ctx, 0); err != nil {
		return fmt.Errorf("backfill batch failed: %w", err)
	}
	return nil
}
