package server

import (
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/k11v/gtfshtml/internal/logger"
)

// New returns a new HTTP server.
// It should be started with http.Server's ListenAndServe.
func New(cfg *Config, log zerolog.Logger, deps *Deps) *http.Server {
	addr := net.JoinHostPort(cfg.host(), strconv.Itoa(cfg.port()))

	subLogger := logger.Named(log, "server")

	h := newHandler(cfg, subLogger, deps)

	// No WriteTimeout: a build may stream for as long as the pipeline allows.
	return &http.Server{
		Addr:              addr,
		ErrorLog:          logger.StdLogger(subLogger),
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
