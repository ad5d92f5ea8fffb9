package web

import (
	"io/fs"
	"net/http"
	"strings"
)

// staticFileHandler serves the UI assets. Unknown files get a minimal 404
// and assets are never cached, so a rebuilt binary is picked up on reload.
func (s *Server) staticFileHandler(staticFS fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(staticFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fsPath := strings.TrimPrefix(r.URL.Path, "/")
		if fsPath == "" {
			fsPath = "index.html"
		}

		f, err := staticFS.Open(fsPath)
		if err != nil {
			s.logger.Debug("Static file not found", "fs_path", fsPath)
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		f.Close()

		// Issue the session cookie with the page so the first API call
		// already carries it.
		if fsPath == "index.html" {
			sessionKey(w, r)
		}

		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fileServer.ServeHTTP(w, r)
	})
}
