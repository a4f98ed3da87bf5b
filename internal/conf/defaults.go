// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "mysql2mongo")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "migration.log")

	viper.SetDefault("source.driver", "mysql")
	viper.SetDefault("source.mysql.host", "localhost")
	viper.SetDefault("source.mysql.port", 3306)
	viper.SetDefault("source.mysql.username", "root")
	viper.SetDefault("source.mysql.password", "")
	viper.SetDefault("source.mysql.database", "")
	viper.SetDefault("source.mysql.connecttimeout", 10)
	viper.SetDefault("source.mysql.readtimeout", 45)
	viper.SetDefault("source.sqlite.path", "source.db")

	viper.SetDefault("target.connectiontype", "single")
	viper.SetDefault("target.host", "localhost")
	viper.SetDefault("target.port", 27017)
	viper.SetDefault("target.username", "")
	viper.SetDefault("target.password", "")
	viper.SetDefault("target.database", "")
	viper.SetDefault("target.authsource", "admin")
	viper.SetDefault("target.replicaset", "")
	viper.SetDefault("target.connecttimeoutms", 10000)
	viper.SetDefault("target.sockettimeoutms", 45000)
	viper.SetDefault("target.serverselectiontimeoutms", 10000)

	viper.SetDefault("migration.tables", []string{})
	viper.SetDefault("migration.batchsize", 1000)
	viper.SetDefault("migration.maxretries", 3)
	viper.SetDefault("migration.checkpointpath", "migration_progress.json")
	viper.SetDefault("migration.destructiverollback", false)

	viper.SetDefault("verify.tables", []string{})
	viper.SetDefault("verify.mappingpath", "table_mappings.json")
	viper.SetDefault("verify.recentwindowdays", 7)

	viper.SetDefault("repair.repairmissing", true)
	viper.SetDefault("repair.repairinconsistent", true)
	viper.SetDefault("repair.repairmetadata", true)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "0.0.0.0:8090")
}
