package repair

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
	fixer "github.com/ugdata/mysql2mongo/internal/repair"
	"github.com/ugdata/mysql2mongo/internal/schema"
)

// Command creates the repair command, which re-scans the configured
// tables and fixes missing documents, inconsistent content and absent
// provenance fields.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair divergent tables without a prior verification run",
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

	log := logging.ForService("repair")
	repairer := fixer.New(session.Source, session.Target, session.Registry, settings, session.Metrics)

	tables := settings.Verify.Tables
	if len(tables) == 0 {
		tables = settings.Migration.Tables
	}

	var misaligned []string
	for _, table := range tables {
		unit := schema.UnitFor(table, &settings.Migration)
		outcome, err := repairer.RepairTable(ctx, unit, nil)
		if err != nil {
			return err
		}
		log.Info("table repaired", "table", table,
			"repaired", outcome.Repaired(), "failed", outcome.Failed(),
			"counts_aligned", outcome.CountsAligned)
		if !outcome.CountsAligned || outcome.Failed() > 0 {
			misaligned = append(misaligned, table)
		}
	}
	if len(misaligned) > 0 {
		return fmt.Errorf("repair left %d tables divergent: %v", len(misaligned), misaligned)
	}
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringSliceVar(&settings.Verify.Tables, "table", viper.GetStringSlice("verify.tables"), "Tables to repair (defaults to the migration tables)")
	cmd.Flags().BoolVar(&settings.Repair.RepairMissing, "missing", viper.GetBool("repair.repairmissing"), "Re-insert documents absent from the target")
	cmd.Flags().BoolVar(&settings.Repair.RepairInconsistent, "inconsistent", viper.GetBool("repair.repairinconsistent"), "Rebuild documents whose content diverges")
	cmd.Flags().BoolVar(&settings.Repair.RepairMetadata, "metadata", viper.GetBool("repair.repairmetadata"), "Backfill missing provenance fields")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
