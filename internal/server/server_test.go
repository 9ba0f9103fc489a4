package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	parent := t.TempDir()
	root := filepath.Join(parent, "site")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "js"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>portal</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "js", "app.js"), []byte("console.log(1)"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.bin"), []byte{1, 2, 3}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0644))

	s, err := New(root, "", arbor.NewLogger())
	require.NoError(t, err)
	return s, parent
}

func TestNewWithoutLoggerUsesGlobalLogger(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0644))

	s, err := New(root, "", nil)
	require.NoError(t, err)
	require.NotNil(t, s.logger)

	rec := serve(s, http.MethodGet, "/index.html")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	req.URL.Path = path
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"index.html", "text/html; charset=utf-8"},
		{"app.JS", "text/javascript; charset=utf-8"},
		{"style.css", "text/css; charset=utf-8"},
		{"data.json", "application/json; charset=utf-8"},
		{"font.woff2", "font/woff2"},
		{"logo.svg", "image/svg+xml"},
		{"archive.tar.gz", "application/octet-stream"},
		{"README", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentType(tt.name))
		})
	}
}

func TestServeAssets(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
		wantType   string
	}{
		{name: "root maps to index", method: http.MethodGet, path: "/", wantStatus: http.StatusOK, wantBody: "<html>portal</html>", wantType: "text/html; charset=utf-8"},
		{name: "explicit index", method: http.MethodGet, path: "/index.html", wantStatus: http.StatusOK, wantBody: "<html>portal</html>"},
		{name: "nested script", method: http.MethodGet, path: "/js/app.js", wantStatus: http.StatusOK, wantBody: "console.log(1)", wantType: "text/javascript; charset=utf-8"},
		{name: "unknown extension", method: http.MethodGet, path: "/data.bin", wantStatus: http.StatusOK, wantType: "application/octet-stream"},
		{name: "missing file", method: http.MethodGet, path: "/missing.css", wantStatus: http.StatusNotFound},
		{name: "directory", method: http.MethodGet, path: "/js", wantStatus: http.StatusNotFound},
		{name: "parent traversal", method: http.MethodGet, path: "/../secret.txt", wantStatus: http.StatusForbidden},
		{name: "nested traversal", method: http.MethodGet, path: "/js/../../secret.txt", wantStatus: http.StatusForbidden},
		{name: "post rejected", method: http.MethodPost, path: "/index.html", wantStatus: http.StatusMethodNotAllowed},
		{name: "head allowed", method: http.MethodHead, path: "/index.html", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.method, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHeadHasNoBody(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, http.MethodHead, "/index.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "19", rec.Header().Get("Content-Length"))
}

func TestResolveStaysUnderRoot(t *testing.T) {
	s, _ := newTestServer(t)

	path, ok := s.resolve("/")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(s.Root(), "index.html"), path)

	_, ok = s.resolve("/..")
	assert.False(t, ok)

	_, ok = s.resolve("/..secret/file.txt")
	assert.True(t, ok)
}

func TestStartAndShutdown(t *testing.T) {
	s, _ := newTestServer(t)

	base, err := s.Start()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(base, "http://127.0.0.1:"))

	_, err = s.Start()
	assert.Error(t, err)

	resp, err := http.Get(base + "/index.html?cache=1")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>portal</html>", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))

	client := &http.Client{Timeout: time.Second}
	_, err = client.Get(base + "/index.html")
	assert.Error(t, err)
}

func TestShutdownWithoutStart(t *testing.T) {
	s, _ := newTestServer(t)
	assert.NoError(t, s.Shutdown(context.Background()))
}
