package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/deppfellow/academia/internal/handler"
	"github.com/deppfellow/academia/internal/router"
	"github.com/deppfellow/academia/internal/service"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, withWorker)
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also process background tasks in this process")

	return cmd
}

func runServe(ctx context.Context, withWorker bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if withWorker {
		stopScheduler, err := a.startWorker()
		if err != nil {
			return errors.Wrap(err, "start worker")
		}
		defer stopScheduler()
	}

	services, err := service.NewService(a.server, a.repos)
	if err != nil {
		return errors.Wrap(err, "create services")
	}

	handlers := handler.NewHandlers(a.server, services)
	a.server.SetupHTTPServer(router.NewRouter(a.server, handlers))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
		return nil
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	}
}
