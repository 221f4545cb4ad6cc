// Package llm streams chat completions from an OpenAI-compatible model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/websocket"
	openai "github.com/sashabaranov/go-openai"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
)

// MessageWriter receives the streamed answer. *websocket.Conn satisfies it.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client streams a chat completion into a writer.
type Client interface {
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
	StreamChat(ctx context.Context, prompt string, writer MessageWriter) error
}

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams overrides the configured sampling settings for one call.
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
}

type openAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient returns a client for the configured provider. An empty BaseURL
// targets the OpenAI API.
func NewClient(cfg config.LLMConfig) Client {
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *openAIClient) StreamChat(ctx context.Context, prompt string, writer MessageWriter) error {
	return c.StreamChatMessages(ctx, []Message{{Role: openai.ChatMessageRoleUser, Content: prompt}}, nil, writer)
}

// StreamChatMessages writes every content delta as a text frame until the
// model finishes.
func (c *openAIClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Stream:      true,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if gen != nil {
		if gen.Temperature != nil {
			req.Temperature = *gen.Temperature
		}
		if gen.MaxTokens != nil {
			req.MaxTokens = *gen.MaxTokens
		}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from stream: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(resp.Choices[0].Delta.Content)); err != nil {
			return fmt.Errorf("failed to write message to websocket: %w", err)
		}
	}
}
