package conf

import (
	"fmt"
)

// ValidateSettings checks the loaded configuration for values that would
// fail at runtime. Validation errors are fatal before any store
// connection is attempted.
func ValidateSettings(settings *Settings) error {
	if err := validateSourceSettings(&settings.Source); err != nil {
		return err
	}
	if err := validateTargetSettings(&settings.Target); err != nil {
		return err
	}
	return validateMigrationSettings(&settings.Migration)
}

func validateSourceSettings(source *SourceSettings) error {
	switch source.Driver {
	case "mysql":
		if source.MySQL.Database == "" {
			return fmt.Errorf("source.mysql.database is required")
		}
		if source.MySQL.Host == "" {
			return fmt.Errorf("source.mysql.host is required")
		}
	case "sqlite":
		if source.SQLite.Path == "" {
			return fmt.Errorf("source.sqlite.path is required")
		}
	default:
		return fmt.Errorf("unknown source driver: %q", source.Driver)
	}
	return nil
}

func validateTargetSettings(target *TargetSettings) error {
	switch target.ConnectionType {
	case "single":
		if target.Host == "" {
			return fmt.Errorf("target.host is required for a single-node connection")
		}
	case "replica_set", "sharded_cluster":
		// Multi-host topologies fall back to the single-node host when no
		// host list is given, so only fully empty configs are rejected.
		if len(target.Hosts) == 0 && target.Host == "" {
			return fmt.Errorf("target.hosts is required for connection type %q", target.ConnectionType)
		}
	default:
		return fmt.Errorf("unknown target connection type: %q", target.ConnectionType)
	}
	if target.Database == "" {
		return fmt.Errorf("target.database is required")
	}
	return nil
}

func validateMigrationSettings(migration *MigrationSettings) error {
	if migration.BatchSize <= 0 {
		return fmt.Errorf("migration.batchsize must be positive, got %d", migration.BatchSize)
	}
	if migration.MaxRetries < 0 {
		return fmt.Errorf("migration.maxretries must not be negative, got %d", migration.MaxRetries)
	}
	if migration.CheckpointPath == "" {
		return fmt.Errorf("migration.checkpointpath is required")
	}
	for table, unit := range migration.Units {
		if unit.BatchSize < 0 {
			return fmt.Errorf("migration.units.%s.batchsize must not be negative", table)
		}
	}
	return nil
}
