package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aristath/exposure-engine/internal/config"
)

var dataDir string

// rootCmd is the base command for the engine CLI. All subcommands are
// registered as children of this command.
var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Portfolio true-exposure engine",
	Long:  "Resolves broker and ETF holdings down to their underlying issuers and computes true portfolio exposure.",
}

// Execute runs the root command and exits with a non-zero status code
// if any subcommand returns an error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadEnv)
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the engine's data directory (default: $ENGINE_DATA_DIR or ~/.exposure-engine)")
}

// loadEnv loads a .env file from the working directory if present;
// absence is not an error since every setting also has an environment
// fallback and a default.
func loadEnv() {
	_ = godotenv.Load()
}

// loadConfig is the shared entry point every subcommand uses to build
// its config.Config, honoring the --data-dir flag when set.
func loadConfig() (*config.Config, error) {
	return config.Load(dataDir)
}
