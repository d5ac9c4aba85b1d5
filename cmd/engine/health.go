package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print cache stats and the latest pipeline health report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		c, err := buildContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to build container: %w", err)
		}
		defer c.Close()

		stats, err := c.store.CacheStats()
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}
		lastSync, err := c.store.LastSync()
		if err != nil {
			return fmt.Errorf("failed to read last sync time: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hive enabled:  %v\n", c.hiveClient.Enabled())
		fmt.Fprintf(out, "last sync:     %s\n", lastSync)
		fmt.Fprintf(out, "assets:        %d\n", stats.Assets)
		fmt.Fprintf(out, "listings:      %d\n", stats.Listings)
		fmt.Fprintf(out, "aliases:       %d\n", stats.Aliases)
		fmt.Fprintf(out, "etf_holdings:  %d\n", stats.ETFHoldings)

		body, err := os.ReadFile(cfg.HealthReportPath())
		if os.IsNotExist(err) {
			fmt.Fprintln(out, "\nno pipeline run has completed yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read health report: %w", err)
		}

		var pretty map[string]interface{}
		if err := json.Unmarshal(body, &pretty); err != nil {
			return fmt.Errorf("failed to parse health report: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		fmt.Fprintln(out, "\nlatest health report:")
		return enc.Encode(pretty)
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
