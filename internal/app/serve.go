package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rateoracle/internal/httpapi"
	"rateoracle/internal/oracle"
)

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, store, closeStore, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var ping func(context.Context) error
	if store != nil {
		ping = store.Ping
	}

	adapter := oracle.NewAdapter(registry, a.newFeed(), oracle.WithLogger(a.Logger))
	handler := httpapi.NewRouter(httpapi.NewServer(registry, adapter, ping, a.Logger))

	cfg := a.Config.Server
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", cfg.Addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Logger.Info().Msg("http api stopped")
	return nil
}
