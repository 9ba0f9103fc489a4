package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod routes requests based on HTTP method, answering 405 for anything unmapped
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".woff2": "font/woff2",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".ico":   "image/x-icon",
	".txt":   "text/plain; charset=utf-8",
}

// ContentType returns the response content type for a file name
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// setupRoutes serves every path from the root. The path is already query-free and decoded.
func (s *Server) setupRoutes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:  s.handleAsset,
			http.MethodHead: s.handleAsset,
		})
	})
}

// resolve maps a URL path to a file under the root; ok is false when it escapes the root
func (s *Server) resolve(urlPath string) (string, bool) {
	if urlPath == "" || urlPath == "/" {
		urlPath = "/index.html"
	}
	full := filepath.Join(s.root, filepath.FromSlash(urlPath))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(r.URL.Path)
	if !ok {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", ContentType(path))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}
