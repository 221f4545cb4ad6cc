package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/repository"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/retriever"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/llm"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

// NoResultAnswer is sent when retrieval finds nothing relevant.
const NoResultAnswer = "I couldn't find relevant information for your query."

const systemRules = "You are a university information assistant. Answer the question using only the provided context. If the answer is not in the context, say you don't know."

// ChatService answers chat messages with retrieval-grounded completions.
type ChatService interface {
	StreamResponse(ctx context.Context, q, sessionID string, w llm.MessageWriter, shouldStop func() bool) error
	History(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type chatService struct {
	retriever        Retriever
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
}

// NewChatService returns a ChatService.
func NewChatService(r Retriever, llmClient llm.Client, conversationRepo repository.ConversationRepository) ChatService {
	return &chatService{
		retriever:        r,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
	}
}

// StreamResponse retrieves context for q and streams the model's answer to
// w as {"chunk": ...} frames followed by a completion frame. Once
// shouldStop reports true the answer is abandoned: nothing more is
// forwarded, the completion frame carries status "stopped" and the partial
// answer is not stored.
func (s *chatService) StreamResponse(ctx context.Context, q, sessionID string, w llm.MessageWriter, shouldStop func() bool) error {
	stopped := func() bool { return shouldStop != nil && shouldStop() }

	res, err := s.retriever.Retrieve(ctx, q, vectorstore.Filter{})
	if err != nil {
		if stopped() {
			sendCompletion(w, "stopped")
			return nil
		}
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	answer := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: w, writer: answer, shouldStop: stopped}

	if res.Outcome == retriever.OutcomeEmpty || len(res.Matches) == 0 {
		err = interceptor.WriteMessage(websocket.TextMessage, []byte(NoResultAnswer))
	} else {
		history, herr := s.history(ctx, sessionID)
		if herr != nil {
			log.Errorf("[ChatService] failed to load history of %s: %v", sessionID, herr)
			history = nil
		}
		messages := composeMessages(buildSystemMessage(BuildContext(res.Matches)), history, q)
		err = s.llmClient.StreamChatMessages(ctx, messages, nil, interceptor)
	}
	if stopped() {
		log.Infof("[ChatService] answer for %s stopped after %d bytes", sessionID, answer.Len())
		sendCompletion(w, "stopped")
		return nil
	}
	if err != nil {
		return err
	}

	sendCompletion(w, "finished")
	if answer.Len() > 0 && s.conversationRepo != nil {
		// the answer was delivered; keep it even if the request is gone
		if err := s.appendExchange(context.Background(), sessionID, q, answer.String()); err != nil {
			log.Errorf("[ChatService] failed to save history of %s: %v", sessionID, err)
		}
	}
	return nil
}

func (s *chatService) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return s.history(ctx, sessionID)
}

func (s *chatService) history(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if s.conversationRepo == nil {
		return nil, nil
	}
	return s.conversationRepo.GetConversationHistory(ctx, sessionID)
}

// BuildContext renders matches as numbered sources for the prompt.
func BuildContext(matches []model.Match) string {
	parts := make([]string, 0, len(matches))
	for i, m := range matches {
		parts = append(parts, fmt.Sprintf("Source %d (Score: %.2f):\n%s", i+1, m.Score, m.Text))
	}
	return strings.Join(parts, "\n\n")
}

func buildSystemMessage(contextText string) string {
	return systemRules + "\n\nContext:\n" + contextText
}

func composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Content})
	}
	return append(msgs, llm.Message{Role: "user", Content: userInput})
}

func (s *chatService) appendExchange(ctx context.Context, sessionID, question, answer string) error {
	history, err := s.conversationRepo.GetConversationHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	return s.conversationRepo.UpdateConversationHistory(ctx, sessionID, history)
}

// wsWriterInterceptor captures the streamed answer while forwarding it as
// JSON frames.
type wsWriterInterceptor struct {
	conn       llm.MessageWriter
	writer     *strings.Builder
	shouldStop func() bool
}

// errAnswerStopped aborts the model stream once the client asked to stop.
var errAnswerStopped = errors.New("answer stopped by client")

func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop() {
		return errAnswerStopped
	}
	w.writer.Write(data)
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

func sendCompletion(w llm.MessageWriter, status string) {
	message := "response complete"
	if status == "stopped" {
		message = "response stopped"
	}
	b, _ := json.Marshal(map[string]interface{}{
		"type":      "completion",
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UnixMilli(),
	})
	_ = w.WriteMessage(websocket.TextMessage, b)
}
