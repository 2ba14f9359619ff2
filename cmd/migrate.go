// -- cmd/migrate.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/claimgate/internal/observability"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "migrate",
		Short:       "Create the registrations, invalid_users and validation_logs tables.",
		Annotations: map[string]string{storeOnlyAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			repo, err := openStore(ctx, cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("failed to open the audit store: %w", err)
			}
			defer repo.Close()

			if err := repo.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
			logger.Info("Schema is up to date.", zap.String("driver", cfg.Database.Driver))
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}
