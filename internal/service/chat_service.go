package service

import (
	"context"
	"strings"

	"github.com/crisis-lab/sim-service/internal/domain"
)

type ChatStore interface {
	Save(ctx context.Context, roomID, sender, content string) (*domain.ChatMessage, error)
	History(ctx context.Context, roomID, after string, limit int) ([]domain.ChatMessage, string, error)
}

type ChatService struct {
	chatStore ChatStore
}

func NewChatService(chatStore ChatStore) *ChatService {
	return &ChatService{chatStore: chatStore}
}

func (s *ChatService) Save(ctx context.Context, roomID, sender, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}
	// todo: move the limit to config
	if len(content) > 4000 {
		return nil, domain.ErrMessageTooLong
	}
	return s.chatStore.Save(ctx, roomID, sender, content)
}

func (s *ChatService) History(ctx context.Context, roomID, after string, limit int) ([]domain.ChatMessage, string, error) {
	return s.chatStore.History(ctx, roomID, after, limit)
}
