package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/wire"
)

var loadCmd = &cobra.Command{
	Use:   "load <path>",
	Short: "Replay a newline-delimited JSON dump back into a shard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		shardID, _ := cmd.Flags().GetUint32("shard")
		path := args[0]

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		var r io.Reader = f
		if strings.HasSuffix(path, ".gz") {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return fmt.Errorf("open gzip %s: %w", path, err)
			}
			defer gz.Close()
			r = gz
		}

		var records []doc.Record
		dec := json.NewDecoder(bufio.NewReader(r))
		for dec.More() {
			var rec dumpRecord
			if err := dec.Decode(&rec); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			body, err := wire.UnmarshalDoc(rec.Body)
			if err != nil {
				return fmt.Errorf("decode record %s: %w", rec.Id, err)
			}
			records = append(records, doc.Record{
				Header: doc.Header{ID: rec.Id, KindID: rec.Kind, Rev: rec.Rev, Deleted: rec.Deleted},
				Body:   body,
			})
		}

		eng := wire.New(cfg)
		defer eng.Close()
		if _, err := eng.MountShard(shardID, false, ""); err != nil {
			return fmt.Errorf("mount shard %d: %w", shardID, err)
		}
		if err := eng.Load(shardID, records); err != nil {
			return fmt.Errorf("load shard %d: %w", shardID, err)
		}
		fmt.Fprintf(os.Stderr, "loaded %d objects into shard %d from %s\n", len(records), shardID, path)
		return nil
	},
}

func init() {
	loadCmd.Flags().Uint32("shard", 0, "Shard id to load into")
}
