package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfdb/shelfdb/pkg/wire"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report mounted-shard and registered-kind counts (spec §6 \"stats\")",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		shardID, _ := cmd.Flags().GetUint32("shard")

		eng := wire.New(cfg)
		defer eng.Close()
		if _, err := eng.MountShard(shardID, false, ""); err != nil {
			return fmt.Errorf("mount shard %d: %w", shardID, err)
		}

		out, err := json.MarshalIndent(eng.Stats(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	statsCmd.Flags().Uint32("shard", 0, "Shard id to mount before reporting")
}
