package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StaticHandler serves the browser client from Dir. Directory listings are never
// shown and missing files fall through to NotFound.
type StaticHandler struct {
	Dir      string
	NotFound http.Handler
}

func (h StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.notFound(w, r)
		return
	}
	if strings.TrimSpace(h.Dir) == "" {
		h.notFound(w, r)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	full := filepath.Join(h.Dir, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		h.notFound(w, r)
		return
	}
	if strings.HasSuffix(full, "index.html") {
		w.Header().Set("Cache-Control", "no-cache")
	}
	http.ServeFile(w, r, full)
}

func (h StaticHandler) notFound(w http.ResponseWriter, r *http.Request) {
	if h.NotFound != nil {
		h.NotFound.ServeHTTP(w, r)
		return
	}
	NotFoundHandler{}.ServeHTTP(w, r)
}
