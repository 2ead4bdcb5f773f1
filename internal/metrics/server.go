package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/broadcast/internal/ipfilter"
)

// Server serves Prometheus metrics on a dedicated listener
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	addr       string
	path       string
	logger     *slog.Logger
	filter     *ipfilter.Filter
}

// NewServer creates a metrics server. An empty allow list admits every client.
func NewServer(m *Metrics, addr, path string, allowedIPs []string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":9091"
	}
	if path == "" {
		path = "/metrics"
	}

	return &Server{
		metrics: m,
		addr:    addr,
		path:    path,
		logger:  logger,
		filter:  ipfilter.New("metrics", allowedIPs, logger),
	}
}

// Handler returns the metrics mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	promHandler := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	mux.Handle(s.path, s.filter.Middleware(promHandler))

	// Unfiltered so load balancers can probe it
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

// ListenAndServe starts the metrics HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.logger.Info("starting metrics server", "addr", s.addr, "path", s.path)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
