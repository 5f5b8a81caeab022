package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/mdns"

	intrnl "ghostcanvas/internal"
	"ghostcanvas/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr     string
	server   *http.Server
	store    *storage.Store
	mdns     *mdns.Server
	stopHub  context.CancelFunc
	hubDone  chan struct{}
	done     chan struct{}
	err      error
	internal *intrnl.Server
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Server exposes the relay for in-process callers such as tests.
func (h *ServerHandle) Server() *intrnl.Server {
	return h.internal
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the SQLite catalog, runs migrations, starts the hub and
// serves in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.Path = NormalizeJoinPath(cfg.Path)
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir()
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = intrnl.DefaultMaxUpload
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	assets, err := intrnl.NewAssetStore(cfg.UploadDir, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	var backgrounds intrnl.BackgroundProvider
	if cfg.ReplicateToken != "" {
		backgrounds = intrnl.NewReplicateProvider(cfg.ReplicateToken)
	}
	server := intrnl.NewServer(intrnl.ServerOptions{
		Assets:      assets,
		Backgrounds: backgrounds,
		MaxUpload:   cfg.MaxUpload,
		Quiet:       cfg.Quiet,
	})

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	handle := &ServerHandle{
		addr:     listener.Addr().String(),
		server:   &http.Server{Handler: server.Routes(cfg.Path), ReadHeaderTimeout: 10 * time.Second},
		store:    store,
		stopHub:  stopHub,
		hubDone:  make(chan struct{}),
		done:     make(chan struct{}),
		internal: server,
	}
	go func() {
		defer close(handle.hubDone)
		server.Run(hubCtx)
	}()

	if cfg.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		advert, err := intrnl.Advertise(port, cfg.Path)
		if err != nil {
			log.Printf("mDNS advertise failed, continuing without discovery: %v", err)
		} else {
			handle.mdns = advert
			if !cfg.Quiet {
				log.Printf("advertising on the local network (port %d)", port)
			}
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := handle.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	go handle.serve(listener)

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	// hijacked websockets survive Shutdown; the hub closes them
	h.stopHub()
	<-h.hubDone
	if h.mdns != nil {
		if err := h.mdns.Shutdown(); err != nil {
			log.Printf("mDNS shutdown error: %v", err)
		}
	}
	if err := h.store.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}
	h.err = err
}
