package main

import (
	"context"
	"time"

	"github.com/deppfellow/academia/internal/database"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const migrateTimeout = 2 * time.Minute

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loggerService, log, err := loadObservability()
			if err != nil {
				return err
			}
			defer loggerService.Shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			if err := database.Migrate(ctx, log, cfg); err != nil {
				return errors.Wrap(err, "migrate")
			}
			return nil
		},
	}
}
