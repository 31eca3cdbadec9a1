package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sensor-sim/internal/config"
	"sensor-sim/internal/logging"
)

var (
	logLevel   string
	logFormat  string
	envFile    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "sensor-sim",
	Short: "IoT sensor reading simulator",
	Long:  "sensor-sim generates synthetic sensor readings, injects anomalies and publishes them to an MQTT broker.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log := logging.New(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Format: logging.ParseFormat(logFormat),
			Output: cmd.ErrOrStderr(),
		})
		cmd.SetContext(logging.NewContext(cmd.Context(), log))
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(simulationOnly bool) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		EnvFile:        envFile,
		ConfigFile:     configFile,
		SimulationOnly: simulationOnly,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Dotenv file to read (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional YAML configuration file")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(checkConfigCmd)
}
