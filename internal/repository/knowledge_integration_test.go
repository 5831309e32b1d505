//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/testutil"
)

// insertChunk seeds one knowledge_base row, optionally with an embedding.
func insertChunk(ctx context.Context, t *testing.T, pool *pgxpool.Pool, source, category, content string, embedding []float32) int64 {
	t.Helper()
	var id int64
	var err error
	if embedding == nil {
		err = pool.QueryRow(ctx,
			`INSERT INTO knowledge_base (source, category, content) VALUES ($1, $2, $3) RETURNING id`,
			source, category, content,
		).Scan(&id)
	} else {
		err = pool.QueryRow(ctx,
			`INSERT INTO knowledge_base (source, category, content, embedding) VALUES ($1, $2, $3, $4) RETURNING id`,
			source, category, content, pgvector.NewVector(embedding),
		).Scan(&id)
	}
	require.NoError(t, err)
	return id
}

// unitVector returns a 1024-dim unit vector with weight concentrated on axis.
func unitVector(axis int) []float32 {
	v := make([]float32, 1024)
	v[axis] = 1
	return v
}

func TestKnowledgeRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)

	t.Run("vector search ranks by similarity and honors the threshold", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		near := insertChunk(ctx, t, pool, "周易", "易经", "乾：元，亨，利，贞。", unitVector(0))
		far := insertChunk(ctx, t, pool, "周公解梦", "周公解梦", "梦蛇者主迁。", unitVector(1))

		results, err := repo.SearchByEmbedding(ctx, unitVector(0), "", 5, 0.5)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, near, results[0].ID)
		assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
		for _, r := range results {
			assert.NotEqual(t, far, r.ID)
		}
	})

	t.Run("vector search filters by category", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		insertChunk(ctx, t, pool, "周易", "易经", "乾：元，亨，利，贞。", unitVector(0))
		dream := insertChunk(ctx, t, pool, "周公解梦", "周公解梦", "梦蛇者主迁。", unitVector(0))

		results, err := repo.SearchByEmbedding(ctx, unitVector(0), "周公解梦", 5, 0.5)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, dream, results[0].ID)
	})

	t.Run("vector search skips rows without embeddings", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		insertChunk(ctx, t, pool, "周易", "易经", "乾：元，亨，利，贞。", nil)

		results, err := repo.SearchByEmbedding(ctx, unitVector(0), "", 5, 0.0)

		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("keyword search matches substrings and excludes ids", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		first := insertChunk(ctx, t, pool, "周公解梦", "周公解梦", "梦见蛇者，主有财。", nil)
		second := insertChunk(ctx, t, pool, "周公解梦", "周公解梦", "梦见龙者，大吉。", nil)
		insertChunk(ctx, t, pool, "周易", "易经", "乾：元，亨，利，贞。", nil)

		results, err := repo.SearchByKeyword(ctx, "梦见", nil, 5)
		require.NoError(t, err)
		require.Len(t, results, 2)

		results, err = repo.SearchByKeyword(ctx, "梦见", []int64{first}, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, second, results[0].ID)
	})

	t.Run("get by id returns not found for a missing chunk", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		_, err := repo.GetByID(ctx, 999999)

		assert.ErrorIs(t, err, domain.ErrChunkNotFound)
	})

	t.Run("backfill cycle lists updates and counts missing embeddings", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		pending := insertChunk(ctx, t, pool, "周易", "易经", "乾：元，亨，利，贞。", nil)
		insertChunk(ctx, t, pool, "周易", "易经", "坤：元，亨。", unitVector(0))

		missing, err := repo.ListMissingEmbeddings(ctx, 10)
		require.NoError(t, err)
		require.Len(t, missing, 1)
		assert.Equal(t, pending, missing[0].ID)
		assert.False(t, missing[0].HasEmbedding())

		require.NoError(t, repo.UpdateEmbedding(ctx, pending, unitVector(2)))

		count, err := repo.CountMissingEmbeddings(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		chunk, err := repo.GetByID(ctx, pending)
		require.NoError(t, err)
		assert.True(t, chunk.HasEmbedding())

		// The embedding is written exactly once.
		err = repo.UpdateEmbedding(ctx, pending, unitVector(3))
		assert.ErrorIs(t, err, domain.ErrChunkNotFound)

		chunk, err = repo.GetByID(ctx, pending)
		require.NoError(t, err)
		assert.Equal(t, unitVector(2), chunk.Embedding)
	})

	t.Run("update embedding for a missing chunk returns not found", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		err := repo.UpdateEmbedding(ctx, 424242, unitVector(0))

		assert.ErrorIs(t, err, domain.ErrChunkNotFound)
	})
}
