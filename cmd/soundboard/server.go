package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/beakbeak/soundboard/internal/reqlog"
	"github.com/beakbeak/soundboard/pkg/board"
	"github.com/beakbeak/soundboard/pkg/events"
	"github.com/beakbeak/soundboard/pkg/playback"
	"github.com/beakbeak/soundboard/pkg/sounds"
)

const sessionName = "soundboard"

//go:embed assets
var embeddedAssets embed.FS

// serverConfig contains configuration parameters used by newServer.
type serverConfig struct {
	AudioPath  string // Directory listed and served under /audio/.
	Passphrase string // If empty, access is not restricted.

	// Opener, if set, enables server-side playback through /api/playback.
	// It receives the library's FsPath as its path resolver.
	Opener func(resolve func(string) (string, error)) playback.Opener

	// SessionKey authenticates session cookies. (Default: random)
	SessionKey []byte
}

type server struct {
	library *sounds.Library
	hub     *events.Hub
	watcher *sounds.Watcher
	board   *board.Board

	passphrase   string
	sessionStore *sessions.CookieStore
	assets       fs.FS

	handler http.Handler
}

func newServer(config *serverConfig) (*server, error) {
	libraryConfig := sounds.NewLibraryConfig()
	libraryConfig.RootPath = config.AudioPath

	library, err := sounds.NewLibrary(libraryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio library: %w", err)
	}

	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		return nil, err
	}

	sessionKey := config.SessionKey
	if sessionKey == nil {
		sessionKey = securecookie.GenerateRandomKey(32)
	}

	srv := &server{
		library:      library,
		hub:          events.NewHub(),
		passphrase:   config.Passphrase,
		sessionStore: sessions.NewCookieStore(sessionKey),
		assets:       assets,
	}

	if srv.watcher, err = sounds.Watch(library.RootPath(), srv.hub); err != nil {
		return nil, fmt.Errorf("failed to watch audio directory: %w", err)
	}

	if config.Opener != nil {
		srv.board, err = board.NewBoard(&board.BoardConfig{
			Library: library,
			Opener:  config.Opener(library.FsPath),
			Events:  srv.hub,
		})
		if err != nil {
			srv.watcher.Close()
			return nil, err
		}
	}

	srv.handler = reqlog.Middleware(srv.newRouter())
	return srv, nil
}

func (srv *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	srv.handler.ServeHTTP(w, req)
}

// Close stops the directory watcher and releases server-side playback.
func (srv *server) Close() error {
	if srv.board != nil {
		srv.board.Close()
	}
	return srv.watcher.Close()
}

func (srv *server) newRouter() *mux.Router {
	router := mux.NewRouter()

	router.Path("/").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if srv.loginIfUnauthorized(w, req) {
			return
		}
		srv.serveAsset(w, req, "html/main.html")
	})

	router.Path("/login").Methods(http.MethodGet, http.MethodPost).HandlerFunc(srv.handleLogin)

	router.Path("/logout").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if srv.trySaveSessionValues(w, req, "valid", false) {
			http.Redirect(w, req, "/login", http.StatusFound)
		}
	})

	api := router.PathPrefix("/api").Subrouter()
	api.Use(srv.requireAuthorization)

	api.Path("/sounds").Methods(http.MethodGet).HandlerFunc(srv.library.HandleList)
	api.Path("/sounds/search").Methods(http.MethodGet).HandlerFunc(srv.library.HandleSearch)
	api.Path("/events").Methods(http.MethodGet).Handler(srv.hub)

	if srv.board != nil {
		api.Path("/playback").Methods(http.MethodGet).HandlerFunc(srv.board.HandleStates)
		api.Path("/playback").Methods(http.MethodPost).HandlerFunc(srv.board.HandleRpc)
	}

	audio := router.PathPrefix(srv.library.Prefix() + "/").Subrouter()
	audio.Use(srv.requireAuthorization)
	audio.Methods(http.MethodGet, http.MethodHead).HandlerFunc(srv.library.ServeAudio)

	router.PathPrefix("/static/").Handler(fileOnlyServer{srv.assets})

	return router
}

func (srv *server) handleLogin(w http.ResponseWriter, req *http.Request) {
	if srv.passphrase == "" {
		http.NotFound(w, req)
		return
	}

	if req.Method == http.MethodGet {
		srv.serveAsset(w, req, "html/login.html")
		return
	}

	if err := req.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.PostForm.Get("passphrase") != srv.passphrase {
		slog.WarnContext(req.Context(), "login failed", "remote", req.RemoteAddr)

		query := url.Values{}
		query.Set("from", req.URL.Query().Get("from"))
		query.Set("failed", "")

		loginUrl := url.URL{Path: "/login", RawQuery: query.Encode()}

		http.Redirect(w, req, loginUrl.String(), http.StatusFound)
		return
	}

	if !srv.trySaveSessionValues(w, req, "valid", true) {
		return
	}

	http.Redirect(w, req, safeRedirect(req.URL.Query().Get("from")), http.StatusFound)
}

func (srv *server) isAuthorized(req *http.Request) bool {
	if srv.passphrase == "" {
		return true
	}

	session, err := srv.sessionStore.Get(req, sessionName)
	if err != nil {
		return false
	}
	if valid, ok := session.Values["valid"]; ok {
		if validBool, ok := valid.(bool); ok {
			return validBool
		}
	}
	return false
}

func (srv *server) loginIfUnauthorized(w http.ResponseWriter, req *http.Request) bool {
	if srv.isAuthorized(req) {
		return false
	}
	http.Redirect(w, req, "/login?from="+url.QueryEscape(req.URL.String()), http.StatusFound)
	return true
}

// requireAuthorization rejects unauthorized requests with 401 instead of
// redirecting, since its routes are fetched by scripts.
func (srv *server) requireAuthorization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !srv.isAuthorized(req) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (srv *server) trySaveSessionValues(w http.ResponseWriter, req *http.Request, values ...interface{}) bool {
	session, _ := srv.sessionStore.Get(req, sessionName)

	for i := 0; i+1 < len(values); i += 2 {
		session.Values[values[i]] = values[i+1]
	}

	if err := session.Save(req, w); err != nil {
		slog.ErrorContext(req.Context(), "failed to save session", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return false
	}
	return true
}

func (srv *server) serveAsset(w http.ResponseWriter, req *http.Request, name string) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, req, srv.assets, name)
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(from string) string {
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return "/"
	}
	return from
}

// A fileOnlyServer serves files from the "static" directory of assets.
// Requests for directories are rejected.
type fileOnlyServer struct {
	assets fs.FS
}

func (fos fileOnlyServer) ServeHTTP(
	w http.ResponseWriter,
	req *http.Request,
) {
	name := strings.TrimPrefix(path.Clean(req.URL.Path), "/")

	info, err := fs.Stat(fos.assets, name)
	if err != nil || info.IsDir() || !strings.HasPrefix(name, "static/") {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.WarnContext(req.Context(), "failed to stat asset", "name", name, "error", err)
		}
		http.NotFound(w, req)
		return
	}

	http.ServeFileFS(w, req, fos.assets, name)
}
