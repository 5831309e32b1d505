package service

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/diviner-ai/diviner/internal/config"
	"github.com/diviner-ai/diviner/internal/domain"
)

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockSearchRepository is a mock implementation of KnowledgeSearchRepository
type MockSearchRepository struct {
	mock.Mock
}

func (m *MockSearchRepository) SearchByEmbedding(ctx context.Context, embedding []float32, category string, limit int, threshold float64) ([]*SearchResult, error) {
	args := m.Called(ctx, embedding, category, limit, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SearchResult), args.Error(1)
}

func (m *MockSearchRepository) SearchByKeyword(ctx context.Context, keyword string, excludeIDs []int64, limit int) ([]*SearchResult, error) {
	args := m.Called(ctx, keyword, excludeIDs, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SearchResult), args.Error(1)
}

func vectorResult(id int64, similarity float64) *SearchResult {
	return &SearchResult{
		ID:         id,
		Source:     "周易",
		Category:   "易经",
		Content:    "乾：元，亨，利，贞。",
		Similarity: similarity,
	}
}

func TestSearchService_Search(t *testing.T) {
	embedding := []float32{0.1, 0.2, 0.3}

	t.Run("returns vector results without fallback when any are found", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		svc := NewSearchService(embedder, repo)

		embedder.On("GenerateEmbedding", mock.Anything, "乾卦是什么意思").Return(embedding, nil)
		repo.On("SearchByEmbedding", mock.Anything, embedding, "易经", 5, 0.3).
			Return([]*SearchResult{vectorResult(1, 0.91)}, nil)

		out, err := svc.Search(context.Background(), SearchInput{Query: "乾卦是什么意思"})

		require.NoError(t, err)
		require.Len(t, out.Results, 1)
		assert.Equal(t, int64(1), out.Results[0].ID)
		assert.Equal(t, "易经", out.DetectedCategory)
		repo.AssertNotCalled(t, "SearchByKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns error for empty query", func(t *testing.T) {
		svc := NewSearchService(new(MockEmbeddingClient), new(MockSearchRepository))

		out, err := svc.Search(context.Background(), SearchInput{Query: "   "})

		require.Error(t, err)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	})

	t.Run("explicit category wins over detection", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		svc := NewSearchService(embedder, repo)

		embedder.On("GenerateEmbedding", mock.Anything, "乾卦").Return(embedding, nil)
		repo.On("SearchByEmbedding", mock.Anything, embedding, "风水", 5, 0.3).
			Return([]*SearchResult{vectorResult(2, 0.8)}, nil)

		out, err := svc.Search(context.Background(), SearchInput{Query: "乾卦", Category: "风水"})

		require.NoError(t, err)
		assert.Equal(t, "风水", out.DetectedCategory)
		repo.AssertExpectations(t)
	})

	t.Run("falls back to keyword search when vector search is empty", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		svc := NewSearchService(embedder, repo)

		embedder.On("GenerateEmbedding", mock.Anything, "梦见蛇").Return(embedding, nil)
		repo.On("SearchByEmbedding", mock.Anything, embedding, "周公解梦", 5, 0.3).
			Return([]*SearchResult{}, nil)
		// The query and its dream expansions are tried in order.
		repo.On("SearchByKeyword", mock.Anything, "梦见蛇", mock.Anything, mock.Anything).
			Return([]*SearchResult{}, nil)
		repo.On("SearchByKeyword", mock.Anything, "梦境", mock.Anything, mock.Anything).
			Return([]*SearchResult{{ID: 7, Source: "周公解梦", Content: "梦蛇者主迁"}}, nil)
		repo.On("SearchByKeyword", mock.Anything, "做梦", mock.Anything, mock.Anything).
			Return([]*SearchResult{}, nil)
		repo.On("SearchByKeyword", mock.Anything, "周公解梦", mock.Anything, mock.Anything).
			Return([]*SearchResult{}, nil)

		out, err := svc.Search(context.Background(), SearchInput{Query: "梦见蛇"})

		require.NoError(t, err)
		assert.Equal(t, "周公解梦", out.DetectedCategory)
		require.Len(t, out.Results, 1)
		assert.Equal(t, int64(7), out.Results[0].ID)
		assert.Equal(t, KeywordMatchScore, out.Results[0].Similarity)
	})

	t.Run("skips fallback on a partially filled page under the empty policy", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		svc := NewSearchService(embedder, repo)

		embedder.On("GenerateEmbedding", mock.Anything, "风水方位").Return(embedding, nil)
		repo.On("SearchByEmbedding", mock.Anything, embedding, "风水", 5, 0.3).
			Return([]*SearchResult{vectorResult(1, 0.6), vectorResult(2, 0.5)}, nil)

		out, err := svc.Search(context.Background(), SearchInput{Query: "风水方位"})

		require.NoError(t, err)
		assert.Len(t, out.Results, 2)
		repo.AssertNotCalled(t, "SearchByKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("tops up a partial page under the underfill policy", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		cfg := DefaultSearchConfig()
		cfg.Fallback = config.FallbackOnUnderfill
		svc := NewSearchServiceWithConfig(embedder, repo, cfg)

		embedder.On("GenerateEmbedding", mock.Anything, "风水方位").Return(embedding, nil)
		repo.On("SearchByEmbedding", mock.Anything, embedding, "风水", 5, 0.3).
			Return([]*SearchResult{vectorResult(1, 0.6)}, nil)
		repo.On("SearchByKeyword", mock.Anything, "风水方位", []int64{1}, 4).
			Return([]*SearchResult{{ID: 9, Content: "坐北朝南"}}, nil)
		repo.On("SearchByKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return([]*SearchResult{}, nil)

		out, err := svc.Search(context.Background(), SearchInput{Query: "风水方位"})

		require.NoError(t, err)
		require.Len(t, out.Results, 2)
		// A raw-query hit scores as an exact match, above the 0.6 vector hit.
		assert.Equal(t, int64(9), out.Results[0].ID)
		assert.Equal(t, ExactMatchScore, out.Results[0].Similarity)
		assert.Equal(t, int64(1), out.Results[1].ID)
	})

	t.Run("degrades to keyword-only retrieval when embedding fails", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		svc := NewSearchService(embedder, repo)

		var logged bytes.Buffer
		log.SetOutput(&logged)
		defer log.SetOutput(os.Stderr)

		embedder.On("GenerateEmbedding", mock.Anything, "星座运势").
			Return(nil, errors.New("upstream timeout"))
		repo.On("SearchByKeyword", mock.Anything, "星座运势", mock.Anything, mock.Anything).
			Return([]*SearchResult{{ID: 3, Content: "白羊座"}}, nil)
		repo.On("SearchByKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return([]*SearchResult{}, nil)

		out, err := svc.Search(context.Background(), SearchInput{Query: "星座运势"})

		require.NoError(t, err)
		require.Len(t, out.Results, 1)
		assert.Equal(t, int64(3), out.Results[0].ID)
		assert.Contains(t, logged.String(), domain.ErrEmbeddingUnavailable.Message)
		repo.AssertNotCalled(t, "SearchByEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns empty results when every stage fails", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		svc := NewSearchService(embedder, repo)

		embedder.On("GenerateEmbedding", mock.Anything, "八卦图").Return(embedding, nil)
		repo.On("SearchByEmbedding", mock.Anything, embedding, "易经", 5, 0.3).
			Return(nil, errors.New("connection refused"))
		repo.On("SearchByKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused"))

		out, err := svc.Search(context.Background(), SearchInput{Query: "八卦图"})

		require.NoError(t, err)
		assert.Empty(t, out.Results)
	})

	t.Run("honors explicit limit and threshold", func(t *testing.T) {
		embedder := new(MockEmbeddingClient)
		repo := new(MockSearchRepository)
		svc := NewSearchService(embedder, repo)

		embedder.On("GenerateEmbedding", mock.Anything, "乾卦").Return(embedding, nil)
		repo.On("SearchByEmbedding", mock.Anything, embedding, "易经", 3, 0.75).
			Return([]*SearchResult{vectorResult(1, 0.9)}, nil)

		_, err := svc.Search(context.Background(), SearchInput{Query: "乾卦", Limit: 3, Threshold: 0.75})

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestKeywordStage_Search(t *testing.T) {
	t.Run("deduplicates across keywords and respects the limit", func(t *testing.T) {
		repo := new(MockSearchRepository)
		stage := NewKeywordStage(repo)

		repo.On("SearchByKeyword", mock.Anything, "乾卦详解", mock.Anything, 2).
			Return([]*SearchResult{{ID: 1}, {ID: 1}}, nil)
		repo.On("SearchByKeyword", mock.Anything, "乾", mock.Anything, 1).
			Return([]*SearchResult{{ID: 2}}, nil)

		results, err := stage.Search(context.Background(), Criteria{Query: "乾卦详解", Limit: 2})

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, int64(1), results[0].ID)
		assert.Equal(t, ExactMatchScore, results[0].Similarity)
		assert.Equal(t, int64(2), results[1].ID)
		assert.Equal(t, KeywordMatchScore, results[1].Similarity)
		// The remaining expansions were never needed.
		repo.AssertNotCalled(t, "SearchByKeyword", mock.Anything, "周易", mock.Anything, mock.Anything)
	})

	t.Run("skips excluded IDs", func(t *testing.T) {
		repo := new(MockSearchRepository)
		stage := NewKeywordStage(repo)

		repo.On("SearchByKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return([]*SearchResult{{ID: 5}, {ID: 6}}, nil)

		results, err := stage.Search(context.Background(), Criteria{Query: "风水", Limit: 5, ExcludeIDs: []int64{5}})

		require.NoError(t, err)
		for _, r := range results {
			assert.NotEqual(t, int64(5), r.ID)
		}
	})

	t.Run("continues past a failing keyword", func(t *testing.T) {
		repo := new(MockSearchRepository)
		stage := NewKeywordStage(repo)

		repo.On("SearchByKeyword", mock.Anything, "星座配对", mock.Anything, mock.Anything).
			Return(nil, errors.New("query canceled"))
		repo.On("SearchByKeyword", mock.Anything, "占星", mock.Anything, mock.Anything).
			Return([]*SearchResult{{ID: 8}}, nil)
		repo.On("SearchByKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return([]*SearchResult{}, nil)

		results, err := stage.Search(context.Background(), Criteria{Query: "星座配对", Limit: 3})

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, int64(8), results[0].ID)
	})
}

func TestVectorStage_Search(t *testing.T) {
	t.Run("returns empty without an embedding", func(t *testing.T) {
		repo := new(MockSearchRepository)
		stage := NewVectorStage(repo)

		results, err := stage.Search(context.Background(), Criteria{Query: "乾卦", Limit: 5})

		require.NoError(t, err)
		assert.Empty(t, results)
		repo.AssertNotCalled(t, "SearchByEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
