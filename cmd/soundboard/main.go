package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/vharitonsky/iniflags"

	"github.com/beakbeak/soundboard/internal/reqlog"
	"github.com/beakbeak/soundboard/pkg/beepaudio"
	"github.com/beakbeak/soundboard/pkg/playback"
)

func main() {
	var (
		address = flag.String(
			"listen", ":9090", "[address][:port] at which to listen for connections.")
		cert      = flag.String("cert", "", "TLS certificate file.")
		key       = flag.String("key", "", "TLS key file.")
		audioPath = flag.String(
			"audio", "audio", "Directory containing the sound files. Created if missing.")
		passphrase = flag.String(
			"pass", "",
			`Passphrase used for login. If unspecified, access will not be restricted.

WARNING: Passphrases from the client will be transmitted as plain text,
so use of HTTPS is recommended.`)
		serverPlayback = flag.Bool(
			"serverPlayback", false, "Enable /api/playback, which plays sounds on the server's audio device.")
		sampleRate = flag.Int(
			"sampleRate", 44100, "Output sample rate of the server's audio device.")
		logLevel = flag.String(
			"logLevel", "info", "Minimum level of log messages: debug, info, warn or error.")
	)

	// Reword usage strings of flags from iniflags package
	if configFlag := flag.Lookup("config"); configFlag != nil {
		configFlag.Usage =
			"Path to ini file containing values for command-line flags in 'flagName = value' format. "
	}
	if dumpflagsFlag := flag.Lookup("dumpflags"); dumpflagsFlag != nil {
		dumpflagsFlag.Usage =
			"Print values for all command-line flags to stdout in a format compatible with -config, then exit."
	}

	iniflags.Parse()

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(reqlog.NewHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))))

	config := &serverConfig{
		AudioPath:  *audioPath,
		Passphrase: *passphrase,
	}
	if *serverPlayback {
		config.Opener = func(resolve func(string) (string, error)) playback.Opener {
			openerConfig := beepaudio.NewOpenerConfig()
			openerConfig.SampleRate = beep.SampleRate(*sampleRate)
			openerConfig.Resolve = resolve
			return beepaudio.NewOpener(openerConfig)
		}
	}

	srv, err := newServer(config)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              *address,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown failed", "error", err)
		}
	}()

	slog.Info("listening", "address", *address, "audio", *audioPath, "serverPlayback", *serverPlayback)
	if len(*cert) > 0 || len(*key) > 0 {
		slog.Info("using HTTPS")
		err = httpServer.ListenAndServeTLS(*cert, *key)
	} else {
		slog.Info("TLS certificate and key not provided; using HTTP")
		err = httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		srv.Close()
		os.Exit(1)
	}
}

func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return level, fmt.Errorf("invalid -logLevel %q", name)
	}
	return level, nil
}
