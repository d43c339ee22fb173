package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// OpsServer serves health and metrics endpoints next to the worker loop.
type OpsServer struct {
	server *http.Server
}

// NewOpsServer returns nil when port is empty so callers can skip it.
func NewOpsServer(port string, handler http.Handler) *OpsServer {
	if port == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &OpsServer{server: srv}
}

// Addr reports the listen address.
func (s *OpsServer) Addr() string {
	if s == nil || s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Run serves until ctx is done, then shuts down within a bounded grace period.
func (s *OpsServer) Run(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
