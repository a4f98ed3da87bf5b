package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ugdata/mysql2mongo/cmd/checkpoint"
	"github.com/ugdata/mysql2mongo/cmd/migrate"
	"github.com/ugdata/mysql2mongo/cmd/repair"
	"github.com/ugdata/mysql2mongo/cmd/verify"
	"github.com/ugdata/mysql2mongo/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mysql2mongo",
		Short: "MySQL to MongoDB migration CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	migrateCmd := migrate.Command(settings)
	verifyCmd := verify.Command(settings)
	repairCmd := repair.Command(settings)
	checkpointCmd := checkpoint.Command(settings)

	subcommands := []*cobra.Command{
		migrateCmd,
		verifyCmd,
		repairCmd,
		checkpointCmd,
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}

		// Re-validate after flags overrode the file-loaded settings.
		if cmd.Name() != checkpointCmd.Name() {
			return conf.ValidateSettings(settings)
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	// The value is consumed before cobra runs, when the configuration file
	// is loaded; the flag is declared here so the parser accepts it.
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
