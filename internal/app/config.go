package app

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	intrnl "ghostcanvas/internal"
)

// DefaultDiscoverTimeout bounds how long the client listens for mDNS answers.
const DefaultDiscoverTimeout = 3 * time.Second

// ServerConfig defines how the HTTP/WebSocket relay should run.
type ServerConfig struct {
	Addr           string
	Path           string
	DBPath         string
	UploadDir      string
	MaxUpload      int64
	ReplicateToken string
	Advertise      bool
	Quiet          bool
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	Nickname  string
	Color     string
	Discover  bool
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("GHOSTCANVAS_DB_PATH"); env != "" {
		return env
	}
	return filepath.Join(dataDir(), "ghostcanvas.db")
}

// DefaultUploadDir is where uploaded PNG materials are stored.
func DefaultUploadDir() string {
	if env := os.Getenv("GHOSTCANVAS_UPLOAD_DIR"); env != "" {
		return env
	}
	return filepath.Join(dataDir(), "uploads")
}

func dataDir() string {
	if env := os.Getenv("GHOSTCANVAS_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ghostcanvas")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "GhostCanvas")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "GhostCanvas")
		}
		return filepath.Join(home, ".local", "share", "ghostcanvas")
	}
	return filepath.Join(".", ".ghostcanvas")
}

// NormalizeJoinPath guarantees the websocket join path starts with '/' and
// falls back to /join when empty.
func NormalizeJoinPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/join"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}

// NormalizeColor accepts "#rrggbb" or "rrggbb" and falls back to the default
// relay color for anything else.
func NormalizeColor(color string) string {
	color = strings.TrimPrefix(strings.TrimSpace(color), "#")
	if len(color) != 6 {
		return intrnl.DefaultColor
	}
	for _, c := range color {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return intrnl.DefaultColor
		}
	}
	return "#" + strings.ToLower(color)
}
