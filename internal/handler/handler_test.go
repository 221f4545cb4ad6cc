package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/middleware"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/pipeline"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/service"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/llm"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tasks"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/token"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Search(ctx context.Context, q string, filter vectorstore.Filter) (model.SearchResponse, error) {
	args := m.Called(ctx, q, filter)
	return args.Get(0).(model.SearchResponse), args.Error(1)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func searchRouter(svc service.SearchService) *gin.Engine {
	r := gin.New()
	h := NewSearchHandler(svc)
	r.GET("/search", h.Search)
	r.POST("/search", h.SearchJSON)
	return r
}

func TestSearchHandler(t *testing.T) {
	hit := model.SearchResponse{
		Outcome: "direct",
		Results: []model.SearchResponseDTO{{ID: "admissions_txt_chunk_0", Score: 0.91, Source: "admissions.txt"}},
	}

	t.Run("GET with filter parameters", func(t *testing.T) {
		svc := new(mockSearch)
		want := vectorstore.And(vectorstore.Eq("source", "admissions.txt"), vectorstore.In("type", "txt", "csv"))
		svc.On("Search", mock.Anything, "admission requirements", want).Return(hit, nil)

		w := serve(searchRouter(svc), httptest.NewRequest(http.MethodGet,
			"/search?query=admission+requirements&source=admissions.txt&type=txt&type=csv", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data model.SearchResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "direct", body.Data.Outcome)
		require.Len(t, body.Data.Results, 1)
		assert.Equal(t, "admissions_txt_chunk_0", body.Data.Results[0].ID)
		svc.AssertExpectations(t)
	})

	t.Run("POST json", func(t *testing.T) {
		svc := new(mockSearch)
		svc.On("Search", mock.Anything, "deadlines", vectorstore.Eq("keywords", "fall")).
			Return(model.SearchResponse{Outcome: "empty", Results: []model.SearchResponseDTO{}}, nil)

		req := httptest.NewRequest(http.MethodPost, "/search",
			strings.NewReader(`{"query":" deadlines ","filter":{"keywords":["fall"]}}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(searchRouter(svc), req)
		assert.Equal(t, http.StatusOK, w.Code, "empty is a valid answer")
		assert.Contains(t, w.Body.String(), `"outcome":"empty"`)
		svc.AssertExpectations(t)
	})

	t.Run("empty query", func(t *testing.T) {
		svc := new(mockSearch)
		w := serve(searchRouter(svc), httptest.NewRequest(http.MethodGet, "/search?query=%20", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown filter field", func(t *testing.T) {
		svc := new(mockSearch)
		w := serve(searchRouter(svc), httptest.NewRequest(http.MethodGet, "/search?query=x&vector=1", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "cannot filter on vector")
	})

	t.Run("backend failure", func(t *testing.T) {
		svc := new(mockSearch)
		svc.On("Search", mock.Anything, "tuition", vectorstore.Filter{}).
			Return(model.SearchResponse{Outcome: "error"}, errors.New("connection refused"))
		w := serve(searchRouter(svc), httptest.NewRequest(http.MethodGet, "/search?query=tuition", nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), `"outcome":"error"`)
	})
}

type fakeIngest struct {
	uploaded  map[string]string
	uploadErr error
	reconcile error
	urls      map[string]string
}

func (f *fakeIngest) Upload(_ context.Context, name string, r io.Reader) (tasks.IngestTask, error) {
	if f.uploadErr != nil {
		return tasks.IngestTask{}, f.uploadErr
	}
	b, _ := io.ReadAll(r)
	f.uploaded[name] = string(b)
	return tasks.IngestTask{Source: name, ObjectKey: "raw/abc/" + name, FileMD5: "abc"}, nil
}

func (f *fakeIngest) Reconcile(context.Context) (service.ReconcileResult, error) {
	return service.ReconcileResult{Queued: 2}, f.reconcile
}

func (f *fakeIngest) Stats(context.Context) (service.IndexStats, error) {
	return service.IndexStats{Store: "memory", Dimension: 3}, nil
}

func (f *fakeIngest) SourceURL(_ context.Context, source string) (string, error) {
	if u, ok := f.urls[source]; ok {
		return u, nil
	}
	return "", service.ErrSourceNotFound
}

func ingestRouter(svc service.IngestService) *gin.Engine {
	r := gin.New()
	h := NewIngestHandler(svc)
	r.POST("/ingest/upload", h.Upload)
	r.POST("/ingest/reconcile", h.Reconcile)
	r.GET("/index/stats", h.Stats)
	r.GET("/ingest/sources/:source/url", h.SourceURL)
	return r
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIngestHandler_Upload(t *testing.T) {
	svc := &fakeIngest{uploaded: map[string]string{}}
	w := serve(ingestRouter(svc), uploadRequest(t, "tuition.csv", "program,rate\nMS,1200\n"))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"object_key":"raw/abc/tuition.csv"`)
	assert.Equal(t, "program,rate\nMS,1200\n", svc.uploaded["tuition.csv"])

	tests := []struct {
		err    error
		status int
	}{
		{service.ErrUnsupportedFile, http.StatusUnsupportedMediaType},
		{pipeline.ErrEmptyFile, http.StatusBadRequest},
		{errors.New("bucket gone"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &fakeIngest{uploadErr: tt.err}
			w := serve(ingestRouter(svc), uploadRequest(t, "x.txt", "x"))
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w = serve(ingestRouter(svc), httptest.NewRequest(http.MethodPost, "/ingest/upload", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandler_Admin(t *testing.T) {
	svc := &fakeIngest{urls: map[string]string{"admissions.txt": "http://minio/raw/admissions.txt?sig"}}
	r := ingestRouter(svc)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/ingest/reconcile", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queued":2`)

	svc.reconcile = service.ErrLedgerDisabled
	w = serve(r, httptest.NewRequest(http.MethodPost, "/ingest/reconcile", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/index/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"memory"`)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/ingest/sources/admissions.txt/url", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://minio/raw/admissions.txt?sig")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/ingest/sources/missing.txt/url", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// echoChat answers every question with two chunks. A "slow" question
// blocks until its context is cancelled.
type echoChat struct {
	sessions chan string
	history  []model.ChatMessage
}

func (e *echoChat) StreamResponse(ctx context.Context, q, sessionID string, w llm.MessageWriter, shouldStop func() bool) error {
	e.sessions <- sessionID
	if q == "fail" {
		return errors.New("llm down")
	}
	if q == "slow" {
		<-ctx.Done()
		if !shouldStop() {
			return ctx.Err()
		}
		b, _ := json.Marshal(map[string]string{"type": "completion", "status": "stopped"})
		return w.WriteMessage(websocket.TextMessage, b)
	}
	for _, part := range []string{"answer to ", q} {
		b, _ := json.Marshal(map[string]string{"chunk": part})
		if err := w.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	b, _ := json.Marshal(map[string]string{"type": "completion", "status": "finished"})
	return w.WriteMessage(websocket.TextMessage, b)
}

func (e *echoChat) History(_ context.Context, sessionID string) ([]model.ChatMessage, error) {
	e.sessions <- sessionID
	return e.history, nil
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestChatHandler_WebSocket(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	tok, err := jwt.GenerateToken("advisor", token.RoleReader)
	require.NoError(t, err)

	chat := &echoChat{sessions: make(chan string, 10)}
	r := gin.New()
	r.GET("/chat/:token", NewChatHandler(chat, jwt).Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/chat/bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/chat/"+tok+"?session=s1", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("tuition")))
	assert.Equal(t, "answer to ", readFrame(t, conn)["chunk"])
	assert.Equal(t, "tuition", readFrame(t, conn)["chunk"])
	assert.Equal(t, "completion", readFrame(t, conn)["type"])
	assert.Equal(t, "advisor:s1", <-chat.sessions)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("slow")))
	<-chat.sessions
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)))
	frames := map[any]map[string]any{}
	for i := 0; i < 2; i++ {
		frame := readFrame(t, conn)
		assert.NotContains(t, frame, "chunk")
		frames[frame["type"]] = frame
	}
	require.Contains(t, frames, "stop")
	require.Contains(t, frames, "completion", "the stop cancels the answer in progress")
	assert.Equal(t, "stopped", frames["completion"]["status"])

	// the next question is answered normally
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("housing")))
	<-chat.sessions
	assert.Equal(t, "answer to ", readFrame(t, conn)["chunk"])
	assert.Equal(t, "housing", readFrame(t, conn)["chunk"])
	assert.Equal(t, "finished", readFrame(t, conn)["status"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("fail")))
	<-chat.sessions
	assert.Contains(t, readFrame(t, conn)["error"], "unavailable")
	assert.Equal(t, "error", readFrame(t, conn)["status"])
}

func TestChatHandler_History(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	tok, err := jwt.GenerateToken("advisor", token.RoleReader)
	require.NoError(t, err)

	chat := &echoChat{
		sessions: make(chan string, 1),
		history:  []model.ChatMessage{{Role: "user", Content: "tuition?"}, {Role: "assistant", Content: "1200 per credit"}},
	}
	r := gin.New()
	r.GET("/chat/history", middleware.AuthMiddleware(jwt), NewChatHandler(chat, jwt).History)

	req := httptest.NewRequest(http.MethodGet, "/chat/history", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1200 per credit")
	assert.Equal(t, "advisor", <-chat.sessions)
}
