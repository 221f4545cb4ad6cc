package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/middleware"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/service"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/token"
)

// pendingQuestions bounds the questions queued behind a streaming answer.
const pendingQuestions = 4

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatHandler serves the chat websocket and the conversation history.
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler returns a ChatHandler.
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{chatService: chatService, jwtManager: jwtManager}
}

// sessionID scopes a conversation to the token subject and the optional
// ?session= parameter.
func sessionID(c *gin.Context, subject string) string {
	if s := c.Query("session"); s != "" {
		return subject + ":" + s
	}
	return subject
}

// lockedConn serializes writes from the reader loop and the streaming
// goroutine.
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedConn) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

func (l *lockedConn) writeJSON(v any) {
	b, _ := json.Marshal(v)
	_ = l.WriteMessage(websocket.TextMessage, b)
}

// inflight is the answer being streamed on a connection.
type inflight struct {
	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// begin derives the context of the next answer and clears the stop flag.
func (f *inflight) begin(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	f.mu.Lock()
	f.stopped = false
	f.cancel = cancel
	f.mu.Unlock()
	return ctx, func() {
		f.mu.Lock()
		f.cancel = nil
		f.mu.Unlock()
		cancel()
	}
}

// stop flags the current answer and cancels its context, which aborts the
// retrieval or model stream behind it.
func (f *inflight) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *inflight) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Handle upgrades GET /chat/:token. Every text frame is a question answered
// with streamed {"chunk": ...} frames and a completion frame;
// {"type":"stop"} interrupts the answer in progress. Questions sent while an
// answer streams are answered in order.
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token", "data": nil})
		return
	}
	session := sessionID(c, claims.Subject)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[ChatHandler] websocket upgrade failed", err)
		return
	}
	defer ws.Close()
	log.Infof("[ChatHandler] websocket opened for %s", session)

	ctx, cancel := context.WithCancel(c.Request.Context())
	conn := &lockedConn{conn: ws}
	questions := make(chan string, pendingQuestions)
	var (
		current inflight
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for q := range questions {
			actx, done := current.begin(ctx)
			h.answer(actx, conn, q, session, current.isStopped)
			done()
		}
	}()
	defer func() {
		cancel()
		close(questions)
		wg.Wait()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ChatHandler] read from %s failed: %v", session, err)
			}
			return
		}

		if isStopCommand(message) {
			current.stop()
			conn.writeJSON(map[string]any{
				"type":      "stop",
				"message":   "response stopped",
				"timestamp": time.Now().UnixMilli(),
			})
			continue
		}
		select {
		case questions <- string(message):
		default:
			conn.writeJSON(map[string]string{"error": "too many pending questions"})
		}
	}
}

func (h *ChatHandler) answer(ctx context.Context, conn *lockedConn, q, session string, shouldStop func() bool) {
	if err := h.chatService.StreamResponse(ctx, q, session, conn, shouldStop); err != nil {
		if ctx.Err() != nil {
			log.Debugf("[ChatHandler] answer for %s abandoned: %v", session, err)
			return
		}
		log.Errorf("[ChatHandler] answer for %s failed: %v", session, err)
		conn.writeJSON(map[string]string{"error": "the assistant is unavailable, try again later"})
		conn.writeJSON(map[string]any{
			"type":      "completion",
			"status":    "error",
			"message":   "response failed",
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

func isStopCommand(message []byte) bool {
	if len(message) == 0 || message[0] != '{' {
		return false
	}
	var ctrl struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(message, &ctrl) == nil && ctrl.Type == "stop"
}

// History returns the stored conversation of the caller.
func (h *ChatHandler) History(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
		return
	}
	history, err := h.chatService.History(c.Request.Context(), sessionID(c, claims.Subject))
	if err != nil {
		log.Errorf("[ChatHandler] history of %s failed: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": history, "message": "success"})
}
