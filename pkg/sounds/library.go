// Package sounds provides an HTTP API for listing and serving the audio files
// in a single directory.
package sounds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LibraryConfig contains configuration parameters used by NewLibrary. It should
// be created with NewLibraryConfig to provide default values.
type LibraryConfig struct {
	RootPath string // The path to the audio files in the local filesystem.

	// Prefix is the URL path prefix of the audio files returned by the
	// listing and handled by ServeAudio. (Default: "/audio")
	Prefix string
}

// NewLibraryConfig creates a new LibraryConfig object with default values.
func NewLibraryConfig() *LibraryConfig {
	return &LibraryConfig{
		Prefix: DefaultPrefix,
	}
}

// A Library lists and serves the audio files in one directory. It keeps no
// state between requests: every listing reads the directory again.
type Library struct {
	config LibraryConfig
}

// NewLibrary creates a new Library object. The root directory does not need to
// exist yet.
func NewLibrary(config *LibraryConfig) (*Library, error) {
	if config.RootPath == "" {
		return nil, fmt.Errorf("RootPath is empty")
	}
	if config.Prefix == "" || !strings.HasPrefix(config.Prefix, "/") {
		return nil, fmt.Errorf("invalid prefix: %q", config.Prefix)
	}

	ml := Library{config: *config}
	ml.config.Prefix = strings.TrimSuffix(config.Prefix, "/")

	slog.Debug("sound library opened", "prefix", ml.config.Prefix, "root", ml.config.RootPath)
	return &ml, nil
}

// RootPath returns the directory holding the audio files.
func (ml *Library) RootPath() string {
	return ml.config.RootPath
}

// Prefix returns the URL path prefix of the audio files.
func (ml *Library) Prefix() string {
	return ml.config.Prefix
}

// List returns the URL paths of the audio files currently in the library.
func (ml *Library) List() ([]string, error) {
	return List(ml.config.RootPath, ml.config.Prefix)
}

// Entries returns the audio files currently in the library.
func (ml *Library) Entries() ([]Entry, error) {
	return Entries(ml.config.RootPath, ml.config.Prefix)
}

// FsPath converts a URL path returned by List to a path in the local file
// system. It fails for paths outside the library prefix and for paths that
// name anything other than a file directly inside the root directory.
func (ml *Library) FsPath(urlPath string) (string, error) {
	rel, ok := strings.CutPrefix(urlPath, ml.config.Prefix+"/")
	if !ok || rel == "" || strings.Contains(rel, "/") || rel == "." || rel == ".." {
		return "", fmt.Errorf("path is not in sound library: %q", urlPath)
	}
	return filepath.Join(ml.config.RootPath, rel), nil
}

// HandleList writes the JSON array of audio file paths. A missing directory
// yields an empty array; any other failure yields a generic 500 response.
func (ml *Library) HandleList(
	w http.ResponseWriter,
	req *http.Request,
) {
	ctx := req.Context()

	paths, err := ml.List()
	if err != nil {
		slog.ErrorContext(ctx, "failed to read audio directory",
			"root", ml.config.RootPath, "error", err)
		writeJson(ctx, w, http.StatusInternalServerError,
			map[string]string{"error": "Failed to load sound files"})
		return
	}

	writeJson(ctx, w, http.StatusOK, paths)
}

// ServeAudio serves a single audio file below the library prefix. Requests
// for directories, nested paths and files with unrecognized extensions are
// rejected.
func (ml *Library) ServeAudio(
	w http.ResponseWriter,
	req *http.Request,
) {
	fsPath, err := ml.FsPath(path.Clean(req.URL.Path))
	if err != nil || !IsAudioFile(fsPath) {
		http.NotFound(w, req)
		return
	}

	if info, err := os.Stat(fsPath); err != nil || info.IsDir() {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Type", ContentType(fsPath))
	http.ServeFile(w, req, fsPath)
}

func writeJson(
	ctx context.Context,
	w http.ResponseWriter,
	status int,
	data interface{},
) {
	dataJson, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal JSON", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(status)

	if _, err := w.Write(dataJson); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
