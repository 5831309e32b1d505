package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/diviner-ai/diviner/internal/api"
	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query     string  `json:"query"`
	Category  string  `json:"category"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
}

type SearchResultResponse struct {
	ID         int64   `json:"id"`
	Source     string  `json:"source"`
	Category   string  `json:"category"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type SearchPerformance struct {
	EmbedTimeMS  int64 `json:"embed_time_ms"`
	SearchTimeMS int64 `json:"search_time_ms"`
	TotalTimeMS  int64 `json:"total_time_ms"`
}

type SearchResponse struct {
	Success          bool                   `json:"success"`
	Query            string                 `json:"query"`
	DetectedCategory string                 `json:"detected_category"`
	Results          []SearchResultResponse `json:"results"`
	Count            int                    `json:"count"`
	Performance      SearchPerformance      `json:"performance"`
}

// Search handles POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		api.HandleError(w, domain.ErrEmptyQuery)
		return
	}

	out, err := h.svc.Search(r.Context(), service.SearchInput{
		Query:     req.Query,
		Category:  req.Category,
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results := make([]SearchResultResponse, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, SearchResultResponse{
			ID:         r.ID,
			Source:     r.Source,
			Category:   r.Category,
			Content:    r.Content,
			Similarity: roundSimilarity(r.Similarity),
		})
	}

	api.JSON(w, http.StatusOK, SearchResponse{
		Success:          true,
		Query:            out.Query,
		DetectedCategory: out.DetectedCategory,
		Results:          results,
		Count:            len(results),
		Performance: SearchPerformance{
			EmbedTimeMS:  out.EmbedTime.Milliseconds(),
			SearchTimeMS: out.SearchTime.Milliseconds(),
			TotalTimeMS:  time.Since(start).Milliseconds(),
		},
	})
}

// roundSimilarity keeps two decimal places on the wire.
func roundSimilarity(s float64) float64 {
	return math.Round(s*100) / 100
}
