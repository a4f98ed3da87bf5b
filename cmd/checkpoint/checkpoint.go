package checkpoint

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ugdata/mysql2mongo/internal/checkpoint"
	"github.com/ugdata/mysql2mongo/internal/conf"
)

// Command creates the checkpoint command, which inspects or clears the
// checkpoint file without touching either store.
func Command(settings *conf.Settings) *cobra.Command {
	var clearTable string
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear migration checkpoints",
		Long:  "List the tables with an outstanding checkpoint, or clear checkpoints to force the next migration to restart from offset zero.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, clearTable, clearAll)
		},
	}

	cmd.Flags().StringVar(&clearTable, "clear", "", "Clear the checkpoint of the given table")
	cmd.Flags().BoolVar(&clearAll, "clear-all", false, "Clear every checkpoint")
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	return cmd
}

func run(settings *conf.Settings, clearTable string, clearAll bool) error {
	store, err := checkpoint.NewStore(settings.Migration.CheckpointPath)
	if err != nil {
		return err
	}

	if clearAll {
		if err := store.ClearAll(); err != nil {
			return err
		}
		fmt.Println("all checkpoints cleared")
		return nil
	}
	if clearTable != "" {
		if err := store.Clear(clearTable); err != nil {
			return err
		}
		fmt.Printf("checkpoint cleared for table %s\n", clearTable)
		return nil
	}

	entries := store.All()
	if len(entries) == 0 {
		fmt.Println("no outstanding checkpoints")
		return nil
	}
	for table, cp := range entries {
		fmt.Printf("%s: offset %d, %d records migrated, last update %s\n",
			table, cp.Offset, cp.MigratedCount, cp.LastUpdate.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Migration.CheckpointPath, "checkpoint", viper.GetString("migration.checkpointpath"), "Path of the checkpoint file")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
