package domain

import "time"

// KnowledgeChunk is a stored unit of source text with an optional embedding.
// Chunks are created by the ingestion pipeline and are immutable afterwards,
// except for the embedding field which is populated exactly once by the
// backfill job.
type KnowledgeChunk struct {
	ID         int64
	Source     string
	Category   string
	Content    string
	ChunkIndex int
	Metadata   map[string]any
	Embedding  []float32
	CreatedAt  time.Time
}

// HasEmbedding reports whether the chunk has been vectorized.
func (c *KnowledgeChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
