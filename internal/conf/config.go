// Package conf loads and validates application settings from the
// configuration file, environment and command line.
package conf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// HostPort is one node of a multi-host target topology.
type HostPort struct {
	Host string
	Port int
}

// MySQLSettings holds the MySQL source connection parameters.
type MySQLSettings struct {
	Host           string
	Port           int
	Username       string
	Password       string
	Database       string
	ConnectTimeout int // seconds
	ReadTimeout    int // seconds
}

// SQLiteSettings holds the SQLite source parameters, used for development
// and tests.
type SQLiteSettings struct {
	Path string
}

// SourceSettings selects and configures the row-oriented source store.
type SourceSettings struct {
	Driver string // "mysql" or "sqlite"
	MySQL  MySQLSettings
	SQLite SQLiteSettings
}

// TargetSettings configures the MongoDB target store. ConnectionType
// selects between a single node, a replica set and a sharded cluster; the
// multi-host forms use Hosts, the single form uses Host/Port.
type TargetSettings struct {
	ConnectionType string // "single", "replica_set" or "sharded_cluster"
	Host           string
	Port           int
	Hosts          []HostPort
	Username       string
	Password       string
	Database       string
	AuthSource     string
	ReplicaSet     string

	ConnectTimeoutMs         int
	SocketTimeoutMs          int
	ServerSelectionTimeoutMs int

	// Extra URI options appended verbatim, e.g. readPreference.
	Options map[string]string
}

// UnitSettings overrides per-table defaults.
type UnitSettings struct {
	IdentityField string
	BatchSize     int
}

// MigrationSettings drives the migrate command.
type MigrationSettings struct {
	Tables              []string
	BatchSize           int
	MaxRetries          int
	CheckpointPath      string
	DestructiveRollback bool
	Units               map[string]UnitSettings
}

// VerifySettings drives the verify command.
type VerifySettings struct {
	Tables           []string
	MappingPath      string
	RecentWindowDays int
}

// RepairSettings toggles the individual repair kinds.
type RepairSettings struct {
	RepairMissing      bool
	RepairInconsistent bool
	RepairMetadata     bool
}

// LogConfig configures optional file logging.
type LogConfig struct {
	Enabled bool
	Path    string
}

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name string
	Log  LogConfig
}

// MetricsSettings configures the optional prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
	Listen  string
}

// Settings is the root of the configuration tree.
type Settings struct {
	Debug     bool
	Main      MainSettings
	Source    SourceSettings
	Target    TargetSettings
	Migration MigrationSettings
	Verify    VerifySettings
	Repair    RepairSettings
	Metrics   MetricsSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a
// Settings struct and stores it as the active instance. A non-empty
// configPath overrides the default config file discovery.
func Load(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configPath); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validation happens in the root command once flags are applied, so
	// inspect-only commands still run against an incomplete config.
	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the
// configuration file.
func initViper(configPath string) error {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/mysql2mongo")
	}

	// Defaults defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file, create one with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the current defaults to ./config.yaml so the
// operator has a template to edit.
func createDefaultConfig() error {
	if err := viper.SafeWriteConfigAs("config.yaml"); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return viper.ReadInConfig()
}

// Setting returns the active settings instance. It is nil before Load().
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
