package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/hrygo/covercast/server/router/api/v1"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forecasting HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, p)
		if err != nil {
			return err
		}
		defer a.Close()

		api := v1.NewAPIV1Service(p, a.store, a.forecast, a.batch, a.metrics, slog.Default())
		e := api.NewEchoServer()

		addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
		errCh := make(chan error, 1)
		go func() {
			slog.Info("covercast started",
				slog.String("addr", addr),
				slog.String("mode", p.Mode),
				slog.String("driver", p.Driver),
				slog.Bool("ai_enabled", a.embedder != nil),
			)
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	},
}
