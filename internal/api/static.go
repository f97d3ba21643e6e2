package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// staticHandler serves the browser bundle from publicDir, falling back to
// index.html for client-side routes. API paths never reach this handler.
func staticHandler(publicDir string) http.HandlerFunc {
	var (
		index = ""
		fs    http.Handler
	)
	if publicDir != "" {
		candidate := filepath.Join(publicDir, "index.html")
		if _, err := os.Stat(candidate); err == nil {
			index = candidate
			fs = http.FileServer(http.Dir(publicDir))
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		if index == "" {
			http.Error(w, "static bundle missing", http.StatusInternalServerError)
			return
		}

		path := filepath.Join(publicDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}
