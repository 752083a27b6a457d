package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/sitekit/internal/version"
)

//go:embed assets/client.js
var clientJS []byte

func (s *DevServer) handleClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	http.ServeContent(w, r, "client.js", s.started, bytes.NewReader(clientJS))
}

func (s *DevServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"clients":    s.ClientCount(),
	}
	s.writeJSON(w, r, health)
}

// handleStatus reports the current errors and, when configured, task state.
func (s *DevServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	errs := s.currentErrors(nil)
	if len(errs) > 0 {
		status = "error"
	}
	body := map[string]interface{}{
		"status":    status,
		"errors":    errs,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	}
	if s.status != nil {
		body["tasks"] = s.status()
	}
	s.writeJSON(w, r, body)
}

func (s *DevServer) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "failed to encode response", "path", r.URL.Path)
	}
}

// handleStatic serves the output directory. HTML pages get the live reload
// client injected; everything else goes through the file server.
func (s *DevServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.config.Development.HotReload {
		s.files.ServeHTTP(w, r)
		return
	}

	name, info, ok := s.htmlFile(r.URL.Path)
	if !ok {
		s.files.ServeHTTP(w, r)
		return
	}
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		http.Error(w, "Failed to read page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, filepath.Base(name), info.ModTime(), bytes.NewReader(injectClient(data)))
}

// htmlFile maps a URL path to the HTML file it serves, if any.
func (s *DevServer) htmlFile(urlPath string) (string, os.FileInfo, bool) {
	clean := path.Clean("/" + urlPath)
	if strings.HasSuffix(urlPath, "/") {
		clean = path.Join(clean, "index.html")
	}
	ext := strings.ToLower(path.Ext(clean))
	if ext != ".html" && ext != ".htm" {
		return "", nil, false
	}
	// The file server redirects ".../index.html" to the directory.
	if path.Base(clean) == "index.html" && !strings.HasSuffix(urlPath, "/") {
		return "", nil, false
	}
	name := filepath.Join(filepath.FromSlash(s.config.Paths.Dist), filepath.FromSlash(clean))
	info, err := s.fs.Stat(name)
	if err != nil || info.IsDir() {
		return "", nil, false
	}
	return name, info, true
}
