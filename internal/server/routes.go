package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// ConvertPath is the path the conversion endpoint is mounted on.
	ConvertPath string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		ConvertPath:    "/convert",
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing. The conversion
// endpoint is registered without a method so that OPTIONS and the 405
// answer carry the CORS headers.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	if cfg.ConvertPath == "" {
		cfg.ConvertPath = DefaultConfig().ConvertPath
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle(cfg.ConvertPath, CORSMiddleware(cfg.AllowedOrigins)(http.HandlerFunc(h.Convert)))

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		MetricsMiddleware(),
	)

	return chain(mux)
}
