package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfdb/shelfdb/pkg/log"
	"github.com/shelfdb/shelfdb/pkg/profile"
	"github.com/shelfdb/shelfdb/pkg/wire"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Mount shards and expose the Prometheus /metrics endpoint until interrupted",
	Long: `serve mounts the requested shards and blocks, serving
/metrics on Profile.Addr, until interrupted. It does not expose
put/get/find/etc over the network — those operations are reached only
by embedding pkg/wire.Engine.Dispatch directly in a host process (spec
§3 "Out of scope: ... a network protocol").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		shards, _ := cmd.Flags().GetUint32Slice("shard")
		if len(shards) == 0 {
			shards = []uint32{0}
		}

		eng := wire.New(cfg)
		defer eng.Close()
		for _, id := range shards {
			if _, err := eng.MountShard(id, false, ""); err != nil {
				return fmt.Errorf("mount shard %d: %w", id, err)
			}
			profile.ShardsActive.Inc()
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", profile.Handler())
		srv := &http.Server{Addr: cfg.Profile.Addr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", cfg.Profile.Addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().Uint32Slice("shard", []uint32{0}, "Shard ids to mount before serving")
}
