package migrate

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ugdata/mysql2mongo/internal/bootstrap"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/logging"
	engine "github.com/ugdata/mysql2mongo/internal/migrate"
)

// Command creates the migrate command, which copies every configured
// table from the source to the target with checkpointed batches.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate configured tables to the target store",
		Long:  "Copy every configured table batch by batch, resuming from the last checkpoint and verifying record counts after each table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := bootstrap.Connect(ctx, settings)
	if err != nil {
		return err
	}
	defer session.Close(context.Background())

	orchestrator := engine.New(session.Source, session.Target, session.Registry,
		session.Checkpoints, settings, session.Metrics, logging.ForService("migrate"))

	summary := orchestrator.MigrateAll(ctx)
	if !summary.Success() {
		return fmt.Errorf("migration failed for %d of %d tables: %v",
			len(summary.Failed), summary.Total, summary.Failed)
	}
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringSliceVar(&settings.Migration.Tables, "table", viper.GetStringSlice("migration.tables"), "Tables to migrate")
	cmd.Flags().IntVar(&settings.Migration.BatchSize, "batchsize", viper.GetInt("migration.batchsize"), "Records per batch")
	cmd.Flags().IntVar(&settings.Migration.MaxRetries, "maxretries", viper.GetInt("migration.maxretries"), "Retries for a fully failed batch write")
	cmd.Flags().StringVar(&settings.Migration.CheckpointPath, "checkpoint", viper.GetString("migration.checkpointpath"), "Path of the checkpoint file")
	cmd.Flags().BoolVar(&settings.Migration.DestructiveRollback, "destructiverollback", viper.GetBool("migration.destructiverollback"), "Delete migrated documents when a table is rolled back")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
