package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// KnowledgeRepository implements vector and keyword lookups over the
// knowledge_base table.
type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id int64) (*domain.KnowledgeChunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, source, category, content, chunk_index, metadata, embedding, created_at
		 FROM knowledge_base WHERE id = $1`,
		id,
	)
	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return chunk, nil
}

// SearchByEmbedding returns up to limit chunks whose cosine similarity to the
// query vector is at least threshold, optionally restricted to a category,
// ordered by similarity descending.
func (r *KnowledgeRepository) SearchByEmbedding(ctx context.Context, embedding []float32, category string, limit int, threshold float64) ([]*service.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(embedding)

	query := `
		SELECT id, source, category, content, chunk_index, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM knowledge_base
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $2
		  AND ($3 = '' OR category = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, vec, threshold, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMatches(rows)
}

// SearchByKeyword returns up to limit chunks whose content contains the
// keyword, skipping ids already collected by an earlier stage. Matches carry
// no similarity score; the caller assigns the keyword confidence constant.
func (r *KnowledgeRepository) SearchByKeyword(ctx context.Context, keyword string, excludeIDs []int64, limit int) ([]*service.SearchResult, error) {
	if limit <= 0 {
		return []*service.SearchResult{}, nil
	}
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, source, category, content, chunk_index, metadata, 0::float8 AS similarity
		 FROM knowledge_base
		 WHERE content ILIKE '%' || $1 || '%'
		   AND NOT (id = ANY($2))
		 ORDER BY id
		 LIMIT $3`,
		keyword, excludeIDs, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMatches(rows)
}

// ListMissingEmbeddings returns up to limit chunks that have no embedding yet.
func (r *KnowledgeRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, source, category, content, chunk_index, metadata, embedding, created_at
		 FROM knowledge_base
		 WHERE embedding IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.KnowledgeChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// UpdateEmbedding stores the embedding for a chunk that does not have one
// yet; a chunk's embedding is written exactly once. This is the only mutation
// the retrieval layer ever performs. Returns ErrChunkNotFound when the chunk
// does not exist or is already embedded, so concurrent backfill runs cannot
// overwrite each other.
func (r *KnowledgeRepository) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_base SET embedding = $1 WHERE id = $2 AND embedding IS NULL`,
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

func (r *KnowledgeRepository) CountMissingEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_base WHERE embedding IS NULL`,
	).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*domain.KnowledgeChunk, error) {
	var chunk domain.KnowledgeChunk
	var metadata []byte
	var embedding *pgvector.Vector
	if err := row.Scan(&chunk.ID, &chunk.Source, &chunk.Category, &chunk.Content,
		&chunk.ChunkIndex, &metadata, &embedding, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
			return nil, err
		}
	}
	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}
	return &chunk, nil
}

func scanMatches(rows pgx.Rows) ([]*service.SearchResult, error) {
	matches := make([]*service.SearchResult, 0)
	for rows.Next() {
		var m service.SearchResult
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.Source, &m.Category, &m.Content,
			&m.ChunkIndex, &metadata, &m.Similarity); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, err
			}
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}
