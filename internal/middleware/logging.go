package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxLoggedBody caps the request and response bodies copied into the log.
const maxLoggedBody = 2048

// bodyLogWriter tees the response into a buffer.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger logs one line per request with its id, status and latency.
// An incoming X-Request-ID is kept, otherwise a new one is generated.
// Multipart bodies are not logged.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestID", requestID)
		c.Header(RequestIDHeader, requestID)

		var requestBody []byte
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if len(requestBody) > maxLoggedBody {
			requestBody = requestBody[:maxLoggedBody]
		}
		log.Infow("HTTP Request Log",
			"requestID", requestID,
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", string(requestBody),
			"responseBody", blw.body.String(),
		)
	}
}
