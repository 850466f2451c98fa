package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quote-drift-tracker/internal/app"
	"quote-drift-tracker/internal/config"
	"quote-drift-tracker/internal/logging"
	"quote-drift-tracker/internal/version"
)

// configEnv names the config file when --config is not given.
const configEnv = "QUOTEDRIFT_CONFIG"

var (
	cfgFile   string
	logLevel  string
	pretty    bool
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "quotedrift",
	Short:         "Sample swap quotes concurrently and measure price drift",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		path := cfgFile
		if path == "" {
			path = os.Getenv(configEnv)
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if pretty {
			cfg.Logging.PrettyPrint = true
		}

		appHandle = app.NewApp(cfg, logging.NewLogger(cfg.Logging))
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quotedrift:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file (default ./config.yaml or $"+configEnv+")")
	flags.StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	flags.BoolVar(&pretty, "pretty", false, "Human readable console logs")

	rootCmd.AddCommand(runCmd, simulateCmd, versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
