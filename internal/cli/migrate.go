package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"task-manager/internal/logger"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables or indexes for the configured storage driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := rootOpts.cfg.Storage
			ctx, cancel := context.WithTimeout(cmd.Context(), atLeast(sc.OpTimeout*3, 10*time.Second))
			defer cancel()

			store, err := openStorage(ctx, sc)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			logger.Info(ctx, "migration finished", "driver", sc.Driver)
			fmt.Fprintf(cmd.OutOrStdout(), "%s storage migrated\n", sc.Driver)
			return nil
		},
	}
}
