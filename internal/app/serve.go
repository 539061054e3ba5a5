package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/api"
)

const shutdownTimeout = 10 * time.Second

// Handler builds the status server handler backed by a Manager.
func (a *App) Handler(manager *Manager) http.Handler {
	return api.NewServer(manager, api.Options{
		APIKey:  a.cfg.Server.APIKey,
		Outlets: a.registry.IDs(),
	}, a.logger).Handler()
}

// Serve runs the status server until ctx is canceled, then shuts it down and
// waits for in-flight runs to finish.
func (a *App) Serve(ctx context.Context) error {
	manager := NewManager(ctx, a)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(manager),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			a.logger.Error("http server error", zap.Error(err))
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	manager.Wait()
	a.logger.Info("shutdown complete")
	return serveErr
}
