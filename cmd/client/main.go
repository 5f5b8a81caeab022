package main

import (
	"flag"
	"fmt"
	"os"

	"ghostcanvas/internal/app"
)

func main() {
	serverJoinURL := flag.String("server", envOrDefault("GHOSTCANVAS_SERVER", ""), "WebSocket join URL (e.g., ws://localhost:8080/join)")
	nickname := flag.String("nick", envOrDefault("GHOSTCANVAS_NICK", ""), "nickname shown to other users")
	color := flag.String("color", envOrDefault("GHOSTCANVAS_COLOR", ""), "your color as #rrggbb")
	discover := flag.Bool("discover", false, "find a relay on the local network when -server is empty")
	flag.Parse()

	cfg := app.ClientConfig{
		ServerURL: *serverJoinURL,
		Nickname:  *nickname,
		Color:     *color,
		Discover:  *discover || *serverJoinURL == "",
	}
	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
