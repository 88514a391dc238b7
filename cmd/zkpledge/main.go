package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"zkpledge/internal/config"
)

const programName = "zkpledge"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

func commonRun() *slog.Logger {
	logLevel := slog.LevelInfo
	if globalFlags.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

func loadConfig(logger *slog.Logger) *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("failed to load config: " + err.Error())
		os.Exit(1)
	}
	return cfg
}

func main() {
	rootCmd := &cobra.Command{
		Use: programName,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVarP(&configFile, "config", "c", "", "path to config file")

	rootCmd.AddCommand(setupCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
