package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/baton"
	httpAdapter "github.com/aretw0/baton/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ShutdownTimeout bounds the graceful shutdown of the HTTP server and the drain
// of pending triggers.
var ShutdownTimeout = 15 * time.Second

// Serve exposes p on ln until ctx is done, then stops accepting requests and
// drains the triggers already handed off. An empty stage serves every stage.
func Serve(ctx context.Context, env *Env, p *baton.Pipeline, ln net.Listener, stage string) error {
	opts := []httpAdapter.Option{
		httpAdapter.WithLogger(env.Logger),
		httpAdapter.WithMetricsHandler(promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{})),
	}
	if stage != "" {
		if !env.Graph.Has(stage) {
			return fmt.Errorf("serve: %w", errUnknownStage(stage))
		}
		opts = append(opts, httpAdapter.WithStages(stage))
	}
	handler, err := httpAdapter.NewHandler(p, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		env.Logger.Info("serving", "addr", ln.Addr().String(), "stage", stage)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return errors.Join(err, p.Shutdown(context.Background()))
	case <-ctx.Done():
	}

	env.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		env.Logger.Warn("graceful shutdown did not complete", "err", err)
		_ = srv.Close()
	}
	if err := p.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("drain triggers: %w", err)
	}
	env.Logger.Info("stopped")
	return nil
}
