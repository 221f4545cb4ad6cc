package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/token"
)

// embeddingServer answers every input with a three dimensional vector.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{1, float32(len(in) % 5), 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, embeddingURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := fmt.Sprintf(`log:
  level: error
jwt:
  secret: test-secret
  token_expire_hours: 1
vector_store:
  backend: memory
embedding:
  base_url: %s
  model: test-embed
  dimensions: 3
`, embeddingURL)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		runFlags.dir, runFlags.prefix, runFlags.force = "", "", false
		tokenFlags.role = token.RoleReader
	})
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRunCmd_Directory(t *testing.T) {
	cfgPath := writeConfig(t, embeddingServer(t).URL)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admissions.txt"),
		[]byte("Admission requires a 3.0 GPA.\n\nTwo recommendation letters are required."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte("\x89PNG"), 0o644))

	out, err := execute(t, "run", "--dir", dir, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "files: 1  skipped: 1")
	assert.Contains(t, out, "failed: 0")
}

func TestRunCmd_NoInput(t *testing.T) {
	cfgPath := writeConfig(t, embeddingServer(t).URL)
	_, err := execute(t, "run", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input")
}

func TestRunCmd_Flags(t *testing.T) {
	for _, name := range []string{"dir", "prefix", "force"} {
		f := runCmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, name[:1], f.Shorthand)
	}
	assert.Equal(t, "./configs/config.yaml", rootCmd.PersistentFlags().Lookup("config").DefValue)
}

func TestReconcileCmd_RequiresLedger(t *testing.T) {
	cfgPath := writeConfig(t, embeddingServer(t).URL)
	_, err := execute(t, "reconcile", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs the ledger")
}

func TestTokenCmd(t *testing.T) {
	cfgPath := writeConfig(t, "http://unused")
	out, err := execute(t, "token", "ops", "--role", token.RoleAdmin, "--config", cfgPath)
	require.NoError(t, err)

	claims, err := token.NewJWTManager("test-secret", 1).VerifyToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, token.RoleAdmin, claims.Role)

	_, err = execute(t, "token", "ops", "--role", "root", "--config", cfgPath)
	assert.Error(t, err)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t c", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}
