package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process background tasks and run the periodic triggers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			stopScheduler, err := a.startWorker()
			if err != nil {
				return errors.Wrap(err, "start worker")
			}
			defer stopScheduler()

			a.logger.Info().Msg("worker running")
			<-ctx.Done()
			a.logger.Info().Msg("shutting down")
			return nil
		},
	}
}
