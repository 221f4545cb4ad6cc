package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

const (
	conversationTTL     = 7 * 24 * time.Hour
	defaultHistoryLimit = 20
)

// ConversationRepository stores the message history of chat sessions.
type ConversationRepository interface {
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	UpdateConversationHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
}

// KeyValueStore is the part of *redis.Client the repository uses.
type KeyValueStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisConversationRepository struct {
	store KeyValueStore
	limit int
}

// NewConversationRepository keeps the last limit messages of each session;
// limit below 1 keeps 20.
func NewConversationRepository(store KeyValueStore, limit int) ConversationRepository {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	return &redisConversationRepository{store: store, limit: limit}
}

func conversationKey(sessionID string) string {
	return "conversation:" + sessionID
}

func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	data, err := r.store.Get(ctx, conversationKey(sessionID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

func (r *redisConversationRepository) UpdateConversationHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error {
	if len(messages) > r.limit {
		messages = messages[len(messages)-r.limit:]
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.store.Set(ctx, conversationKey(sessionID), data, conversationTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}
