package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rateoracle/internal/app"
	"rateoracle/internal/config"
	"rateoracle/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "rateoracle",
	Short:         "Price adapter over a 24-decimal exchange-rate feed",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if appHandle == nil {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			logger := logging.NewLogger(cfg.Logging)
			appHandle = app.NewApp(cfg, logger)
		}
		appHandle.Out = cmd.OutOrStdout()
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
