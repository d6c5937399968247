package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scriptyard/taskd/internal/livelog"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and live-log websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := loadApp(configPath)
	if err != nil {
		return fmt.Errorf("load app: %w", err)
	}
	defer func() {
		if a.stores.Close != nil {
			if err := a.stores.Close(); err != nil {
				slog.Error("serve: close store failed", "error", err)
			}
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	limiter := livelog.NewRateLimiter(60, 10)
	mux := http.NewServeMux()
	mux.Handle("/ws", livelog.Handler(a.hub, limiter, a.cache))

	srv := &http.Server{Addr: a.cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.GracefulStop)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("serve: shutdown failed", "error", err)
		}
	}()

	slog.Info("taskd listening", "addr", a.cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
