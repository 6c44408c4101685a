package main

import (
	"fmt"

	"github.com/sharegate/sharegate/internal/statscache"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Maintain the precomputed statistics cache",
	}

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute cached statistics for every share with access events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if !a.cfg.Stats.Enable {
					return fmt.Errorf("statistics cache is disabled (stats.enable)")
				}
				if err := a.openStatsCache(); err != nil {
					return fmt.Errorf("failed to open statistics cache: %w", err)
				}
				refresher := statscache.NewRefresher(a.accessLog, a.statsCache, a.clock, a.metrics, a.logger)
				n, err := refresher.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"refreshed": n})
			})
		},
	}

	cmd.AddCommand(refresh)
	return cmd
}
