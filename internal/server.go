package internal

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

const (
	DefaultMaxUpload    = 10 << 20
	uploadLimit         = 20
	uploadWindow        = time.Minute
	generateLimit       = 5
	generateWindow      = time.Minute
	multipartFormMemory = 1 << 20
)

// ServerOptions collects the collaborators the HTTP layer needs. Nil Backgrounds
// makes background generation report not_configured.
type ServerOptions struct {
	Assets      *AssetStore
	Backgrounds BackgroundProvider
	MaxUpload   int64
	Quiet       bool
}

// Server exposes the hub over websocket and the asset API over plain HTTP.
type Server struct {
	hub             *Hub
	metrics         *Metrics
	assets          *AssetStore
	backgrounds     BackgroundProvider
	maxUpload       int64
	quiet           bool
	uploadLimiter   *RateLimiter
	generateLimiter *RateLimiter
}

func NewServer(opts ServerOptions) *Server {
	metrics := NewMetrics()
	hub := NewHub(NewRegistry(), metrics)
	hub.SetQuiet(opts.Quiet)
	maxUpload := opts.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Server{
		hub:             hub,
		metrics:         metrics,
		assets:          opts.Assets,
		backgrounds:     opts.Backgrounds,
		maxUpload:       maxUpload,
		quiet:           opts.Quiet,
		uploadLimiter:   NewRateLimiter(uploadLimit, uploadWindow),
		generateLimiter: NewRateLimiter(generateLimit, generateWindow),
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run drives the hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ServeWS(s.hub, w, r)
}

// Routes builds the router. wsPath is where clients open their websocket.
func (s *Server) Routes(wsPath string) http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	r.Methods(http.MethodGet).Path(wsPath).HandlerFunc(s.ServeWS)
	r.Methods(http.MethodGet).Path("/api/users").HandlerFunc(s.HandleUsers)
	r.Methods(http.MethodPost).Path("/api/upload-material").HandlerFunc(s.HandleUploadMaterial)
	r.Methods(http.MethodGet).Path("/api/materials").HandlerFunc(s.HandleMaterials)
	r.Methods(http.MethodDelete).Path("/api/materials/{filename}").HandlerFunc(s.HandleDeleteMaterial)
	r.Methods(http.MethodPost).Path("/api/generate-background").HandlerFunc(s.HandleGenerateBackground)
	r.Methods(http.MethodGet).Path("/api/backgrounds").HandlerFunc(s.HandleBackgrounds)
	r.Methods(http.MethodGet, http.MethodHead).Path("/uploads/{filename}").HandlerFunc(s.HandleServeMaterial)
	r.Methods(http.MethodGet).Path("/metrics").Handler(s.metrics)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		if !s.quiet {
			log.Printf("%s %s %d %s", r.Method, r.URL.Path, m.Code, m.Duration)
		}
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
