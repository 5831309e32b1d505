package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/diviner-ai/diviner/internal/api"
	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/service"
)

type ChatService interface {
	Chat(ctx context.Context, input service.ChatInput) (*service.ChatOutput, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Messages []domain.ConversationMessage `json:"messages"`
	Language string                       `json:"language"`
}

// Chat handles POST /chat. The completion is relayed to the client as
// server-sent events: one data line per upstream chunk, terminated by a
// [DONE] sentinel. Chunks are forwarded as they arrive, not buffered.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.svc.Chat(r.Context(), service.ChatInput{
		Messages: req.Messages,
		Locale:   domain.NormalizeLocale(req.Language),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer out.Stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		chunk, err := out.Stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Headers are already sent; all we can do is end the stream.
			log.Printf("chat stream interrupted: %v", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
