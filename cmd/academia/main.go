// Command academia runs the academic program backend: the HTTP API, the
// background task worker and the database migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "academia",
		Short:         "Academic program admin backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newWorkerCommand())
	cmd.AddCommand(newMigrateCommand())

	return cmd
}
