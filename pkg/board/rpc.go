package board

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/beakbeak/soundboard/pkg/playback"
)

const maxRpcBodySize = 64 << 10

var errMissingVolume = errors.New("missing volume")

type rpcCommand struct {
	Name   string   `json:"cmd"`
	Path   string   `json:"path"`
	Volume *float64 `json:"volume,omitempty"`
}

type rpcHandler func(c *playback.Controller, command *rpcCommand) error

var rpcHandlers = map[string]rpcHandler{
	"play":       rpcPlay,
	"stop":       rpcStop,
	"setVolume":  rpcSetVolume,
	"toggleMute": rpcToggleMute,
}

func rpcPlay(c *playback.Controller, _ *rpcCommand) error {
	return <-c.Play()
}

func rpcStop(c *playback.Controller, _ *rpcCommand) error {
	return <-c.Stop()
}

func rpcSetVolume(c *playback.Controller, command *rpcCommand) error {
	if command.Volume == nil {
		return errMissingVolume
	}
	return <-c.SetVolume(*command.Volume)
}

func rpcToggleMute(c *playback.Controller, _ *rpcCommand) error {
	return <-c.ToggleMute()
}

// HandleRpc dispatches a JSON command of the form
//
//	{"cmd": "play"|"stop"|"setVolume"|"toggleMute", "path": "/audio/x.mp3", "volume": 0.5}
//
// to the controller of the named sound and responds with its new EntryState.
func (b *Board) HandleRpc(
	w http.ResponseWriter,
	req *http.Request,
) {
	ctx := req.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRpcBodySize))
	if err != nil {
		slog.WarnContext(ctx, "failed to read RPC request body", "error", err)
		writeJson(ctx, w, http.StatusBadRequest, errorResponse("Malformed request"))
		return
	}

	var command rpcCommand
	if err := json.Unmarshal(body, &command); err != nil {
		slog.WarnContext(ctx, "malformed RPC command", "error", err, "body", string(body))
		writeJson(ctx, w, http.StatusBadRequest, errorResponse("Malformed request"))
		return
	}

	handler, ok := rpcHandlers[command.Name]
	if !ok {
		slog.WarnContext(ctx, "unknown RPC command", "cmd", command.Name)
		writeJson(ctx, w, http.StatusBadRequest, errorResponse("Unknown command"))
		return
	}

	entry, err := b.lookup(command.Path)
	if err != nil {
		if errors.Is(err, ErrUnknownSound) {
			writeJson(ctx, w, http.StatusNotFound, errorResponse("Unknown sound"))
		} else {
			slog.ErrorContext(ctx, "failed to list sounds", "error", err)
			writeJson(ctx, w, http.StatusInternalServerError, errorResponse("Failed to load sound files"))
		}
		return
	}

	c, err := b.Controller(entry.Path)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get controller", "path", entry.Path, "error", err)
		writeJson(ctx, w, statusForError(err), errorResponse(err.Error()))
		return
	}

	if err := handler(c, &command); err != nil {
		slog.WarnContext(ctx, "RPC command failed", "cmd", command.Name, "path", entry.Path, "error", err)
		writeJson(ctx, w, statusForError(err), errorResponse(err.Error()))
		return
	}

	slog.DebugContext(ctx, "RPC command handled", "cmd", command.Name, "path", entry.Path)
	writeJson(ctx, w, http.StatusOK, newEntryState(entry, c.State()))
}

// HandleStates responds with the EntryState of every sound in the library.
func (b *Board) HandleStates(
	w http.ResponseWriter,
	req *http.Request,
) {
	ctx := req.Context()

	states, err := b.States()
	if err != nil {
		slog.ErrorContext(ctx, "failed to list sounds", "error", err)
		writeJson(ctx, w, http.StatusInternalServerError, errorResponse("Failed to load sound files"))
		return
	}
	writeJson(ctx, w, http.StatusOK, states)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, errMissingVolume), errors.Is(err, playback.ErrInvalidVolume):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownSound):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorResponse(message string) map[string]string {
	return map[string]string{"error": message}
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
