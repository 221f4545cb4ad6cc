// Package tika extracts plain text from documents through an Apache Tika
// server.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
)

const defaultTimeout = 60 * time.Second

// Client talks to the /tika endpoint.
type Client struct {
	serverURL string
	http      *http.Client
}

// NewClient returns a client for cfg.ServerURL.
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
	}
}

// ExtractText sends the document with a content type guessed from its
// extension and returns the extracted text.
func (c *Client) ExtractText(fileReader io.Reader, fileName string) (string, error) {
	return c.ExtractTextContext(context.Background(), fileReader, fileName)
}

// ExtractTextContext is ExtractText bound to ctx.
func (c *Client) ExtractTextContext(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("create tika request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call tika: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("tika returned [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("read tika response: %w", err)
	}
	return buf.String(), nil
}

func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
