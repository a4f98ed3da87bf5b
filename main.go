package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ugdata/mysql2mongo/cmd"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/logging"
)

func main() {
	// The config path has to be known before cobra parses anything, so
	// --config is picked out of the raw arguments.
	settings, err := conf.Load(configPathArg(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.Main.Log.Enabled {
		closeLog, err := logging.EnableFileOutput(settings.Main.Log.Path, level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer closeLog()
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func configPathArg(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}
