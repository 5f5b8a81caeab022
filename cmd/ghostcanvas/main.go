package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	intrnl "ghostcanvas/internal"
	"ghostcanvas/internal/app"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeLocal  = "local"
)

func main() {
	mode, args := parseMode(os.Args[1:])
	flagSet := flag.NewFlagSet("ghostcanvas", flag.ExitOnError)
	addr := flagSet.String("addr", envOrDefault("GHOSTCANVAS_ADDR", defaultAddrForMode(mode)), "server listen address")
	path := flagSet.String("path", envOrDefault("GHOSTCANVAS_PATH", "/join"), "websocket join path")
	db := flagSet.String("db", envOrDefault("GHOSTCANVAS_DB_PATH", ""), "sqlite database path (defaults to a per-user path)")
	uploads := flagSet.String("uploads", envOrDefault("GHOSTCANVAS_UPLOAD_DIR", ""), "directory for uploaded materials")
	maxUpload := flagSet.Int64("max-upload", envInt64("GHOSTCANVAS_MAX_UPLOAD", intrnl.DefaultMaxUpload), "largest accepted material upload in bytes")
	serverURL := flagSet.String("server-url", envOrDefault("GHOSTCANVAS_SERVER", ""), "server websocket URL (client mode)")
	nickname := flagSet.String("nick", envOrDefault("GHOSTCANVAS_NICK", ""), "nickname shown to other users")
	color := flagSet.String("color", envOrDefault("GHOSTCANVAS_COLOR", ""), "your color as #rrggbb")
	advertise := flagSet.Bool("advertise", false, "announce the relay over mDNS (server mode)")
	discover := flagSet.Bool("discover", false, "find a relay over mDNS when -server-url is empty (client mode)")
	quiet := flagSet.Bool("quiet", false, "suppress informational logs")
	version := flagSet.Bool("version", false, "print the version and exit")
	flagSet.Parse(args)

	if *version {
		fmt.Println("ghostcanvas", intrnl.Version)
		return
	}

	serverCfg := app.ServerConfig{
		Addr:           *addr,
		Path:           app.NormalizeJoinPath(*path),
		DBPath:         *db,
		UploadDir:      *uploads,
		MaxUpload:      *maxUpload,
		ReplicateToken: os.Getenv("REPLICATE_API_TOKEN"),
		Advertise:      *advertise,
		Quiet:          *quiet || mode == modeLocal,
	}
	if serverCfg.DBPath == "" {
		serverCfg.DBPath = app.DefaultDBPath()
	}

	clientCfg := app.ClientConfig{
		ServerURL: *serverURL,
		Nickname:  *nickname,
		Color:     *color,
		Discover:  *discover,
	}

	infof := func(format string, args ...interface{}) {
		if *quiet {
			return
		}
		log.Printf(format, args...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case modeServer:
		err = runServerMode(ctx, serverCfg, infof)
	case modeLocal:
		err = runLocalMode(ctx, serverCfg, clientCfg, infof)
	default:
		err = runClientMode(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "ghostcanvas: %v\n", err)
		os.Exit(1)
	}
}

func runServerMode(ctx context.Context, cfg app.ServerConfig, infof func(string, ...interface{})) error {
	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		return err
	}
	infof("GhostCanvas %s server listening on %s (ws path %s, db %s)", intrnl.Version, handle.Addr(), cfg.Path, cfg.DBPath)
	return handle.Wait()
}

func runClientMode(cfg app.ClientConfig) error {
	if cfg.ServerURL == "" && !cfg.Discover {
		return errors.New("client mode requires -server-url, GHOSTCANVAS_SERVER or -discover")
	}
	return app.RunClient(cfg)
}

func runLocalMode(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig, infof func(string, ...interface{})) error {
	handle, err := app.RunServer(ctx, serverCfg)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	infof("Starting local GhostCanvas server on %s (db %s)", handle.Addr(), serverCfg.DBPath)
	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}

	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.Path)
	clientCfg.Discover = false
	infof("Launching client against %s", clientCfg.ServerURL)

	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeClient, args
}

func defaultAddrForMode(mode string) string {
	if mode == modeLocal {
		return "127.0.0.1:0"
	}
	return ":8080"
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
		log.Printf("ignoring %s=%q: not a number", key, value)
	}
	return fallback
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
