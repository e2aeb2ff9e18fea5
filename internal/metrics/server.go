package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string

	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Events, when set, is mounted at /ws.
	Events http.Handler

	// ThumbnailDir, when set, is served under /thumbnails/.
	ThumbnailDir string

	// Ready reports whether the engine can serve; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server provides HTTP endpoints for Prometheus metrics, health checks, the
// live event socket and stored thumbnails.
type Server struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer creates a new server.
func NewServer(cfg ServerConfig, logger *slog.Logger) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Liveness
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)

	// Readiness
	ready := readyHandler(cfg.Ready)
	mux.HandleFunc("/ready", ready)
	mux.HandleFunc("/readyz", ready)

	if cfg.Events != nil {
		mux.Handle("/ws", cfg.Events)
	}
	if cfg.ThumbnailDir != "" {
		mux.Handle("/thumbnails/", thumbnailHandler(cfg.ThumbnailDir))
	}

	return &Server{
		addr:   cfg.Addr,
		logger: logger,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       30 * time.Second,
		},
	}
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func readyHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintln(w, "not ready:", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
}

// thumbnailHandler serves dir without directory listings. Clients add a
// cache-busting query, so responses are not cached.
func thumbnailHandler(dir string) http.Handler {
	files := http.StripPrefix("/thumbnails/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/thumbnails/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}

// Start binds the listen address and serves in a goroutine.
// Returns once the socket is bound. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("http_server_starting", "addr", s.addr)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("http_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
