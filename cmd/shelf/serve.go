package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/shelf/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func (app *application) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the library HTTP API for the local UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runServer(cmd.Context())
		},
	}
}

func (app *application) runServer(ctx context.Context) error {
	rt, err := app.openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	handle, err := rt.manager.Open(ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("library opened",
		zap.String("path", handle.Path()),
		zap.Int("schema_version", handle.Version()))

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Library:        rt.library,
		Events:         server.NewEventDispatcher(),
		Logger:         rt.logger,
		MaxUploadBytes: rt.config.MaxUploadBytes,
		AllowedOrigins: rt.config.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              rt.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
