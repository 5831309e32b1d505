package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/diviner-ai/diviner/internal/config"
	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/telemetry"
)

// Confidence scores assigned to non-vector matches. These are heuristic
// placeholders on the same [0,1] scale as cosine similarity, not measured
// similarity: an exact match outranks everything, a keyword match outranks a
// low-confidence vector hit.
const (
	ExactMatchScore   = 1.0
	KeywordMatchScore = 0.8
)

// SearchResult is a retrieved knowledge chunk with its relevance score.
// Similarity is cosine similarity for vector matches and one of the
// confidence constants above for keyword/exact matches.
type SearchResult struct {
	ID         int64
	Source     string
	Category   string
	Content    string
	ChunkIndex int
	Metadata   map[string]any
	Similarity float64
}

// SearchInput represents input for a retrieval request.
type SearchInput struct {
	Query     string
	Category  string
	Limit     int
	Threshold float64
}

// SearchOutput represents the outcome of a retrieval request, including
// per-stage timings for the API response.
type SearchOutput struct {
	Query            string
	DetectedCategory string
	Results          []*SearchResult
	EmbedTime        time.Duration
	SearchTime       time.Duration
}

// Criteria carries the parameters a retrieval stage operates on.
type Criteria struct {
	Query      string
	Embedding  []float32
	Category   string
	Limit      int
	Threshold  float64
	ExcludeIDs []int64
}

// Searcher is one retrieval stage. Stages are independent and composable;
// the pipeline merges their outputs through MergeResults.
type Searcher interface {
	Search(ctx context.Context, criteria Criteria) ([]*SearchResult, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeSearchRepository defines the store lookups the pipeline depends on
type KnowledgeSearchRepository interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, category string, limit int, threshold float64) ([]*SearchResult, error)
	SearchByKeyword(ctx context.Context, keyword string, excludeIDs []int64, limit int) ([]*SearchResult, error)
}

// VectorStage queries the vector store for nearest chunks above the
// similarity threshold.
type VectorStage struct {
	repo KnowledgeSearchRepository
}

func NewVectorStage(repo KnowledgeSearchRepository) *VectorStage {
	return &VectorStage{repo: repo}
}

func (s *VectorStage) Search(ctx context.Context, criteria Criteria) ([]*SearchResult, error) {
	if len(criteria.Embedding) == 0 {
		return []*SearchResult{}, nil
	}
	return s.repo.SearchByEmbedding(ctx, criteria.Embedding, criteria.Category, criteria.Limit, criteria.Threshold)
}

// KeywordStage runs substring matches for the query and its domain
// expansions. Hits on the raw query count as exact matches; hits on an
// expansion term carry the lower keyword confidence.
type KeywordStage struct {
	repo     KnowledgeSearchRepository
	expander *KeywordExpander
}

func NewKeywordStage(repo KnowledgeSearchRepository) *KeywordStage {
	return &KeywordStage{repo: repo, expander: DefaultKeywordExpander()}
}

func (s *KeywordStage) Search(ctx context.Context, criteria Criteria) ([]*SearchResult, error) {
	keywords := s.expander.Expand(criteria.Query)

	seen := make(map[int64]bool, len(criteria.ExcludeIDs))
	exclude := make([]int64, 0, len(criteria.ExcludeIDs))
	for _, id := range criteria.ExcludeIDs {
		seen[id] = true
		exclude = append(exclude, id)
	}

	results := make([]*SearchResult, 0, criteria.Limit)
	for i, keyword := range keywords {
		if len(results) >= criteria.Limit {
			break
		}

		score := KeywordMatchScore
		if i == 0 {
			score = ExactMatchScore
		}

		matches, err := s.repo.SearchByKeyword(ctx, keyword, exclude, criteria.Limit-len(results))
		if err != nil {
			// One keyword failing does not stop the remainder.
			log.Printf("keyword search for %q failed: %v", keyword, err)
			continue
		}

		for _, m := range matches {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			exclude = append(exclude, m.ID)
			m.Similarity = score
			results = append(results, m)
			if len(results) >= criteria.Limit {
				break
			}
		}
	}

	return results, nil
}

// SearchConfig controls pipeline defaults and the fallback policy.
type SearchConfig struct {
	DefaultLimit     int
	DefaultThreshold float64
	Fallback         config.FallbackPolicy
}

// DefaultSearchConfig returns the default pipeline configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		DefaultLimit:     5,
		DefaultThreshold: 0.3,
		Fallback:         config.FallbackOnEmpty,
	}
}

// SearchService runs the retrieval cascade: category detection, embedding,
// vector search, conditional keyword fallback, merge.
type SearchService struct {
	embedding EmbeddingClient
	vector    Searcher
	keyword   Searcher
	detector  *CategoryDetector
	cfg       SearchConfig
}

// NewSearchService creates a SearchService over the given store with the
// default configuration.
func NewSearchService(embedding EmbeddingClient, repo KnowledgeSearchRepository) *SearchService {
	return NewSearchServiceWithConfig(embedding, repo, DefaultSearchConfig())
}

// NewSearchServiceWithConfig creates a SearchService with explicit configuration.
func NewSearchServiceWithConfig(embedding EmbeddingClient, repo KnowledgeSearchRepository, cfg SearchConfig) *SearchService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	return &SearchService{
		embedding: embedding,
		vector:    NewVectorStage(repo),
		keyword:   NewKeywordStage(repo),
		detector:  DefaultCategoryDetector(),
		cfg:       cfg,
	}
}

// Search executes the retrieval cascade for one query. All stage failures
// are degradable: they are logged and contribute zero results, never an
// error. The only error returned is for an empty query.
func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		Category:  input.Category,
		Operation: "search",
	})
	defer span.End()

	limit := input.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	threshold := input.Threshold
	if threshold <= 0 {
		threshold = s.cfg.DefaultThreshold
	}

	// An explicit category always wins over detection.
	category := input.Category
	if category == "" {
		category = s.detector.Detect(query)
	}

	output := &SearchOutput{
		Query:            query,
		DetectedCategory: category,
	}

	embedStart := time.Now()
	embedding, err := s.embedding.GenerateEmbedding(ctx, query)
	output.EmbedTime = time.Since(embedStart)
	if err != nil {
		// Degrade to keyword-only retrieval.
		log.Printf("continuing without vector search: %v", fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err))
		embedding = nil
	}

	searchStart := time.Now()

	criteria := Criteria{
		Query:     query,
		Embedding: embedding,
		Category:  category,
		Limit:     limit,
		Threshold: threshold,
	}

	vectorResults, err := s.vector.Search(ctx, criteria)
	if err != nil {
		log.Printf("continuing without vector results: %v", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err))
		vectorResults = []*SearchResult{}
	}

	var keywordResults []*SearchResult
	if s.shouldFallback(len(vectorResults), limit) {
		criteria.ExcludeIDs = resultIDs(vectorResults)
		criteria.Limit = limit - len(vectorResults)
		keywordResults, err = s.keyword.Search(ctx, criteria)
		if err != nil {
			log.Printf("continuing without keyword results: %v", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err))
			keywordResults = nil
		}
	}

	output.Results = MergeResults(vectorResults, keywordResults, limit)
	output.SearchTime = time.Since(searchStart)

	return output, nil
}

// shouldFallback applies the configured fallback policy.
func (s *SearchService) shouldFallback(found, limit int) bool {
	if s.cfg.Fallback == config.FallbackOnUnderfill {
		return found < limit
	}
	return found == 0
}

func resultIDs(results []*SearchResult) []int64 {
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids
}
