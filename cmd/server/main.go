package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"ghostcanvas/internal/app"
)

func main() {
	addr := flag.String("addr", getEnv("GHOSTCANVAS_ADDR", ":8080"), "server listen address")
	path := flag.String("path", getEnv("GHOSTCANVAS_PATH", "/join"), "websocket join path")
	db := flag.String("db", getEnv("GHOSTCANVAS_DB_PATH", app.DefaultDBPath()), "sqlite database path")
	uploads := flag.String("uploads", app.DefaultUploadDir(), "directory for uploaded materials")
	maxUpload := flag.Int64("max-upload", getEnvInt64("GHOSTCANVAS_MAX_UPLOAD", 10<<20), "largest accepted material upload in bytes")
	advertise := flag.Bool("advertise", false, "announce the relay over mDNS")
	quiet := flag.Bool("quiet", false, "suppress request logs")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, app.ServerConfig{
		Addr:           *addr,
		Path:           *path,
		DBPath:         *db,
		UploadDir:      *uploads,
		MaxUpload:      *maxUpload,
		ReplicateToken: os.Getenv("REPLICATE_API_TOKEN"),
		Advertise:      *advertise,
		Quiet:          *quiet,
	})
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("GhostCanvas server listening on %s%s", handle.Addr(), app.NormalizeJoinPath(*path))
	if err := handle.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return def
}
