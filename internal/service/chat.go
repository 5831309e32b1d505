package service

import (
	"context"
	"log"
	"strings"

	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/telemetry"
)

// CompletionStream yields raw completion chunks from the model provider.
// Chunks are the provider's wire payloads and are forwarded to the caller
// without buffering or reshaping.
type CompletionStream interface {
	Recv() ([]byte, error)
	Close() error
}

// CompletionClient starts a streamed chat completion.
type CompletionClient interface {
	StreamChatCompletion(ctx context.Context, messages []domain.ConversationMessage) (CompletionStream, error)
}

// Retriever is the retrieval dependency of the chat flow. SearchService
// satisfies it.
type Retriever interface {
	Search(ctx context.Context, input SearchInput) (*SearchOutput, error)
}

// ChatConfig controls retrieval during chat. Chat uses a stricter threshold
// and fewer results than standalone search so the prompt only carries
// high-confidence knowledge.
type ChatConfig struct {
	SearchLimit     int
	SearchThreshold float64
}

func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		SearchLimit:     3,
		SearchThreshold: 0.75,
	}
}

// ChatInput is a chat request: the conversation so far plus the answer
// language.
type ChatInput struct {
	Messages []domain.ConversationMessage
	Locale   domain.Locale
}

// ChatOutput carries the live completion stream and what retrieval
// contributed to it.
type ChatOutput struct {
	Stream           CompletionStream
	KnowledgeUsed    int
	DetectedCategory string
}

// ChatService runs retrieval-augmented chat: look up knowledge for the
// latest user turn, fold it into the system prompt, then stream the
// completion.
type ChatService struct {
	retriever Retriever
	augmenter *PromptAugmenter
	completer CompletionClient
	cfg       ChatConfig
}

func NewChatService(retriever Retriever, completer CompletionClient) *ChatService {
	return NewChatServiceWithConfig(retriever, completer, DefaultChatConfig())
}

func NewChatServiceWithConfig(retriever Retriever, completer CompletionClient, cfg ChatConfig) *ChatService {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 3
	}
	if cfg.SearchThreshold <= 0 {
		cfg.SearchThreshold = 0.75
	}
	return &ChatService{
		retriever: retriever,
		augmenter: NewPromptAugmenter(),
		completer: completer,
		cfg:       cfg,
	}
}

// Chat validates the conversation, augments it with retrieved knowledge and
// opens the completion stream. Retrieval failures are degradable: the chat
// proceeds un-augmented. A completion failure is fatal. The caller owns the
// returned stream and must Close it.
func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatOutput, error) {
	if len(input.Messages) == 0 {
		return nil, domain.ErrEmptyConversation
	}
	for _, m := range input.Messages {
		if !m.Role.IsValid() {
			return nil, domain.ErrInvalidRole
		}
	}
	query, err := domain.LatestUserMessage(input.Messages)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "ChatService.Chat", telemetry.SpanAttributes{
		Operation: "chat",
	})
	defer span.End()

	output := &ChatOutput{}
	messages := input.Messages

	if strings.TrimSpace(query) != "" {
		retrieved, rerr := s.retriever.Search(ctx, SearchInput{
			Query:     query,
			Limit:     s.cfg.SearchLimit,
			Threshold: s.cfg.SearchThreshold,
		})
		if rerr != nil {
			log.Printf("knowledge retrieval failed, answering without augmentation: %v", rerr)
		} else {
			output.KnowledgeUsed = len(retrieved.Results)
			output.DetectedCategory = retrieved.DetectedCategory
			messages = s.augmenter.Augment(messages, retrieved.Results, input.Locale)
		}
	}

	stream, err := s.completer.StreamChatCompletion(ctx, messages)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	output.Stream = stream

	return output, nil
}
