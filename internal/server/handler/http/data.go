package http

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/repository"
)

// servedFiles lists the data directory files the browser may read.
var servedFiles = map[string]bool{
	repository.KeysFile:    true,
	repository.CurrentFile: true,
	repository.CacheFile:   true,
}

// DataHandler serves raw files from the data directory. The web UI
// decrypts the store and parses the cache itself.
type DataHandler struct {
	// Dir is the data directory.
	Dir string
	// Log receives read failures.
	Log *zap.Logger
}

// Serve handles GET /data/{name}.
//
// Responses:
//
//	403 - the name tries to leave the data directory
//	404 - the name is not served or the file does not exist
//	200 - file content; a missing usage cache is served empty
func (h *DataHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if !servedFiles[name] {
		http.NotFound(w, r)
		return
	}

	data, err := os.ReadFile(filepath.Join(h.Dir, name))
	switch {
	case errors.Is(err, fs.ErrNotExist) && name == repository.CacheFile:
		data = nil
	case errors.Is(err, fs.ErrNotExist):
		http.NotFound(w, r)
		return
	case err != nil:
		if h.Log != nil {
			h.Log.Error("failed to read data file", zap.String("name", name), zap.Error(err))
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/octet-stream")
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	hdr.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
