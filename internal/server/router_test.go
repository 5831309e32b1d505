package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/diviner-ai/diviner/internal/api/handlers"
	"github.com/diviner-ai/diviner/internal/service"
)

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchOutput), args.Error(1)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, input service.ChatInput) (*service.ChatOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatOutput), args.Error(1)
}

type MockBackfillService struct {
	mock.Mock
}

func (m *MockBackfillService) Run(ctx context.Context, limit int) (*service.BackfillReport, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BackfillReport), args.Error(1)
}

func newTestRouter(search *MockSearchService, chat *MockChatService, backfill *MockBackfillService) http.Handler {
	return NewRouter(RouterConfig{
		AdminToken:      "test-admin-token",
		SearchHandler:   handlers.NewSearchHandler(search),
		ChatHandler:     handlers.NewChatHandler(chat),
		BackfillHandler: handlers.NewBackfillHandler(backfill),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(new(MockSearchService), new(MockChatService), new(MockBackfillService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Search(t *testing.T) {
	search := new(MockSearchService)
	search.On("Search", mock.Anything, mock.Anything).
		Return(&service.SearchOutput{Query: "乾卦"}, nil)
	router := newTestRouter(search, new(MockChatService), new(MockBackfillService))

	payload, _ := json.Marshal(map[string]string{"query": "乾卦"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	search.AssertExpectations(t)
}

func TestRouter_SearchSetsRequestID(t *testing.T) {
	search := new(MockSearchService)
	search.On("Search", mock.Anything, mock.Anything).
		Return(&service.SearchOutput{Query: "乾卦"}, nil)
	router := newTestRouter(search, new(MockChatService), new(MockBackfillService))

	payload, _ := json.Marshal(map[string]string{"query": "乾卦"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_BackfillRequiresAuth(t *testing.T) {
	backfill := new(MockBackfillService)
	router := newTestRouter(new(MockSearchService), new(MockChatService), backfill)

	req := httptest.NewRequest(http.MethodPost, "/admin/backfill", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	backfill.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRouter_BackfillWithToken(t *testing.T) {
	backfill := new(MockBackfillService)
	backfill.On("Run", mock.Anything, mock.Anything).Return(&service.BackfillReport{Processed: 1}, nil)
	router := newTestRouter(new(MockSearchService), new(MockChatService), backfill)

	req := httptest.NewRequest(http.MethodPost, "/admin/backfill", nil)
	req.Header.Set("Authorization", "Bearer test-admin-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	backfill.AssertExpectations(t)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(new(MockSearchService), new(MockChatService), new(MockBackfillService))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	search := new(MockSearchService)
	router := newTestRouter(search, new(MockChatService), new(MockBackfillService))

	big := bytes.Repeat([]byte("a"), 2*1024*1024)
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(big))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}
