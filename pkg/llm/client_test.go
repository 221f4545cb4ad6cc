package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
)

type recordingWriter struct {
	frames []string
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return fmt.Errorf("unexpected frame type %d", messageType)
	}
	w.frames = append(w.frames, string(data))
	return nil
}

func TestStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Admission ", "", "requires a 3.0 GPA."} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{APIKey: "secret", BaseURL: srv.URL + "/", Model: "test"})
	w := &recordingWriter{}
	require.NoError(t, c.StreamChat(context.Background(), "What are the admission requirements?", w))
	assert.Equal(t, []string{"Admission ", "requires a 3.0 GPA."}, w.frames)
}

func TestStreamChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{BaseURL: srv.URL, Model: "test"})
	err := c.StreamChat(context.Background(), "hi", &recordingWriter{})
	require.Error(t, err)
}
