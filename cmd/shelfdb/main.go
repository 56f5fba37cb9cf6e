// Command shelfdb is the CLI surface spec §6 names as "out of scope":
// dump/load/view tooling and a metrics-only serve mode. It never embeds
// an RPC server for put/get/find/etc — those stay in-process operations
// reached only through pkg/wire.Engine.Dispatch, consistent with the
// spec's "no network protocol" non-goal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfdb/shelfdb/pkg/config"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shelfdb",
	Short:   "shelfdb - embeddable JSON-document database",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"shelfdb version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (defaults plus SHELFDB_* env overrides if omitted)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(viewCmd)
}

// loadConfig reads --config (or defaults) and applies --data-dir if set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	config.InitLogging(cfg)
	return cfg, nil
}
