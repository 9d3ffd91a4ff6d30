package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"trafficwatch/internal/platform/postgres"
	"trafficwatch/internal/violation/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the Postgres schema for the violation store",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.Postgres.DSN = dsn
			}
			if cfg.Postgres.DSN == "" {
				return fmt.Errorf("a postgres DSN is required (--dsn or TRAFFICWATCH_POSTGRES_DSN)")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := postgres.Open(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres connection string; overrides TRAFFICWATCH_POSTGRES_DSN")
	return cmd
}
