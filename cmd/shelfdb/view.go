package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shelfdb/shelfdb/pkg/storage"
)

// viewBucket names one of the sub-databases view enumerates, in the
// order spec §4.2's "cookie/part model" lists them.
type viewBucket struct {
	name   string
	bucket []byte
}

var viewBuckets = []viewBucket{
	{"kinds", storage.BucketKinds},
	{"kindIds", storage.BucketKindIDs},
	{"objects", storage.BucketObjects},
	{"indexes", storage.BucketIndexes},
	{"seq", storage.BucketSequence},
}

// kindDocView mirrors pkg/txn's persisted kindDoc shape, read back here
// without needing a live kind.Registry.
type kindDocView struct {
	ID          string   `yaml:"id"`
	Owner       string   `yaml:"owner"`
	Extends     []string `yaml:"extends"`
	NumericID   int64    `yaml:"numericId"`
	ContentHash uint64   `yaml:"contentHash"`
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Enumerate a shard's binary contents by sub-database",
	Long: `view is a diagnostic tool: it opens a shard's storage file
directly and lists every sub-database's raw key/value pairs. The
"kinds" sub-database is decoded (it is plain YAML); "objects" and
"indexes" are shown as hex, since decoding a record requires the kind's
token map, which view does not load (see DESIGN.md's pkg/txn note on
kind-catalog persistence).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		shardID, _ := cmd.Flags().GetUint32("shard")
		only, _ := cmd.Flags().GetString("bucket")

		eng := storage.NewEngine(cfg.DataDir)
		defer eng.Close()
		if _, err := eng.MountShard(shardID); err != nil {
			return fmt.Errorf("mount shard %d: %w", shardID, err)
		}
		txn, err := eng.Begin(shardID)
		if err != nil {
			return err
		}
		defer txn.Abort()

		for _, b := range viewBuckets {
			if only != "" && only != b.name {
				continue
			}
			fmt.Printf("=== %s ===\n", b.name)
			count := 0
			err := txn.Iterate(shardID, b.bucket, nil, func(key, value []byte) (bool, error) {
				count++
				printEntry(b.name, key, value)
				return true, nil
			})
			if err != nil {
				return fmt.Errorf("iterate %s: %w", b.name, err)
			}
			fmt.Printf("(%d entries)\n\n", count)
		}
		return nil
	},
}

func printEntry(bucket string, key, value []byte) {
	if bucket == "kinds" {
		var kd kindDocView
		if err := yaml.Unmarshal(value, &kd); err == nil {
			fmt.Printf("%s -> %+v\n", key, kd) // key is the plain kind id string here
			return
		}
	}
	fmt.Printf("%s -> %s\n", hex.EncodeToString(key), hex.EncodeToString(value))
}

func init() {
	viewCmd.Flags().Uint32("shard", 0, "Shard id to view")
	viewCmd.Flags().String("bucket", "", "Limit output to one sub-database (kinds, kindIds, objects, indexes, seq)")
}
