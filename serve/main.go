// Codeletd serves completions, explanations and chat replies to editors
// over a Unix socket, one JSON request per connection.
//
// Usage:
//
//	codeletd [--socket path] [--no-watch] [-v]
//
// The socket path defaults to $CODELET_SOCKET, then
// $XDG_RUNTIME_DIR/codelet.sock, then /tmp/codelet-<uid>.sock.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	flag "github.com/spf13/pflag"

	codelet "github.com/Paranoid-AF/codelet"
)

// Version is stamped by the release build. Other builds report the
// module version recorded by the go tool.
var Version = "dev"

func versionString() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.BoolP("verbose", "v", false, "log every request and response to stderr")
	socket := flag.String("socket", "", "socket path (overrides $CODELET_SOCKET)")
	noWatch := flag.Bool("no-watch", false, "do not reload when the config directory changes")
	flag.Parse()

	if *showVersion {
		fmt.Printf("codeletd %s\n", versionString())
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	socketPath := *socket
	if socketPath == "" {
		socketPath = resolveSocketPath()
	}
	if err := run(socketPath, !*noWatch); err != nil {
		slog.Error("daemon stopped", "error", err)
		os.Exit(1)
	}
}

// run serves on socketPath until SIGINT or SIGTERM.
func run(socketPath string, watch bool) error {
	slog.Info("starting", "socket", socketPath, "version", versionString())
	srv, err := NewServer(socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer srv.Close()

	if watch {
		watchConfig(srv, codelet.ConfigDir())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func watchConfig(srv *Server, dir string) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		slog.Debug("config dir absent, not watching", "dir", dir)
		return
	}
	if err := srv.WatchConfig(dir); err != nil {
		slog.Warn("config watch disabled", "dir", dir, "error", err)
		return
	}
	slog.Info("watching config", "dir", dir)
}

func resolveSocketPath() string {
	if path := os.Getenv("CODELET_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "codelet.sock")
	}
	return fmt.Sprintf("/tmp/codelet-%d.sock", os.Getuid())
}
