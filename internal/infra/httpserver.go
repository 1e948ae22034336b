package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer owns the listener lifecycle for the API process.
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer builds the server from config timeouts. The slow paths
// (generation submit, file downloads) stay within the write timeout because
// generation itself happens off-request in job goroutines.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Addr returns the listen address.
func (s *HTTPServer) Addr() string {
	return s.srv.Addr
}

// Start serves requests until Shutdown or a listener error.
func (s *HTTPServer) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests until
// ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
