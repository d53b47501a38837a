// Command procwatch monitors named processes and reports health and alerts.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dreamsxin/procwatch/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "procwatch",
	Short: "Process health monitoring and alerting",
	Long: `procwatch samples the resource usage of registered processes, assesses
their health, tracks short-term trends and raises alerts when thresholds are
crossed.

Configuration is read from the YAML file given with --config and from
PROCWATCH_* environment variables. A .env file in the working directory is
loaded first.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

// loadConfig loads .env, then the config file and environment overrides
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
