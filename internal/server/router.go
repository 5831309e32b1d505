package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diviner-ai/diviner/internal/api"
	"github.com/diviner-ai/diviner/internal/api/handlers"
	"github.com/diviner-ai/diviner/internal/api/middleware"
)

type RouterConfig struct {
	AdminToken      string
	SearchHandler   *handlers.SearchHandler
	ChatHandler     *handlers.ChatHandler
	BackfillHandler *handlers.BackfillHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/search", cfg.SearchHandler.Search)
	r.Post("/chat", cfg.ChatHandler.Chat)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminToken))

		r.Post("/admin/backfill", cfg.BackfillHandler.Run)
	})

	return r
}
