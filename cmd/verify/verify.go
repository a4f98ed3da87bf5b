package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ugdata/mysql2mongo/internal/bootstrap"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/logging"
	"github.com/ugdata/mysql2mongo/internal/repair"
	"github.com/ugdata/mysql2mongo/internal/schema"
	checker "github.com/ugdata/mysql2mongo/internal/verify"
)

// Command creates the verify command, which runs the four consistency
// checks against every configured table and optionally repairs the
// divergences it finds.
func Command(settings *conf.Settings) *cobra.Command {
	var autoRepair bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify migrated tables against the source",
		Long:  "Check record counts, provenance fields, record content and field-mapping configuration for every configured table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, autoRepair)
		},
	}

	cmd.Flags().BoolVar(&autoRepair, "auto-repair", false, "Repair divergent tables and re-verify them")
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, autoRepair bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := bootstrap.Connect(ctx, settings)
	if err != nil {
		return err
	}
	defer session.Close(context.Background())

	log := logging.ForService("verify")
	verifier := checker.New(session.Source, session.Target, settings, session.Mappings, session.Metrics)

	results, err := verifier.VerifyAll(ctx)
	if err != nil {
		return err
	}

	var failed []string
	for _, result := range results {
		reportResult(log, result)
		if !result.Passed() {
			failed = append(failed, result.Table)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	if !autoRepair {
		return fmt.Errorf("verification failed for %d of %d tables: %v", len(failed), len(results), failed)
	}

	repairer := repair.New(session.Source, session.Target, session.Registry, settings, session.Metrics)
	var stillFailed []string
	for _, result := range results {
		if result.Passed() {
			continue
		}
		unit := schema.UnitFor(result.Table, &settings.Migration)
		if _, err := repairer.RepairTable(ctx, unit, result); err != nil {
			return err
		}
		revisited, err := verifier.VerifyTable(ctx, unit)
		if err != nil {
			return err
		}
		reportResult(log, revisited)
		if !revisited.Passed() {
			stillFailed = append(stillFailed, revisited.Table)
		}
	}
	if len(stillFailed) > 0 {
		return fmt.Errorf("verification still failing after repair: %v", stillFailed)
	}
	return nil
}

func reportResult(log *slog.Logger, result *checker.Result) {
	for _, check := range result.Checks() {
		switch {
		case check.Skipped:
			log.Warn("check skipped", "table", result.Table, "check", string(check.Kind), "detail", check.Detail)
		case check.Passed:
			log.Info("check passed", "table", result.Table, "check", string(check.Kind), "detail", check.Detail)
		default:
			log.Error("check failed", "table", result.Table, "check", string(check.Kind), "detail", check.Detail)
		}
		if check.Warning != "" {
			log.Warn("check warning", "table", result.Table, "check", string(check.Kind), "warning", check.Warning)
		}
	}
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringSliceVar(&settings.Verify.Tables, "table", viper.GetStringSlice("verify.tables"), "Tables to verify (defaults to the migration tables)")
	cmd.Flags().StringVar(&settings.Verify.MappingPath, "mapping", viper.GetString("verify.mappingpath"), "Path of the field-mapping file")
	cmd.Flags().IntVar(&settings.Verify.RecentWindowDays, "recentwindow", viper.GetInt("verify.recentwindowdays"), "Days after which migrated documents trigger an age warning")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
