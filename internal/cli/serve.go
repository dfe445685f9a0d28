package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/redline"
	httpadapter "github.com/aretw0/redline/pkg/adapters/http"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 5 * time.Second

// Handler returns the HTTP API of app, with /metrics backed by its registry.
func (a *App) Handler() http.Handler {
	return httpadapter.NewHandler(a.Engine, a.Identities,
		httpadapter.WithLogger(a.Logger),
		httpadapter.WithMetrics(a.Registry),
		httpadapter.WithVersion(redline.Version),
	)
}

// Serve runs the HTTP API on ln until ctx is cancelled.
func Serve(ctx context.Context, app *App, ln net.Listener, out io.Writer) error {
	if err := app.Watch(ctx); err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(out, "Listening on %s", ln.Addr())
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "error", err)
			_ = srv.Close()
		}
		printSystemMessage(out, "Server stopped gracefully")
		return nil
	}
}
