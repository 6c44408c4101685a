package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sharegate/sharegate/internal/server"
	"github.com/sharegate/sharegate/internal/statscache"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const stopTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server and the statistics refresher",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.WithFields(logrus.Fields{
		"version":  version,
		"commit":   commit,
		"date":     date,
		"data_dir": a.cfg.DataDir,
	}).Info("Starting sharegate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		a.logger.Info("Received shutdown signal")
		cancel()
	}()

	if a.cfg.Metrics.Enable && a.cfg.Metrics.Interval > 0 {
		collector := metrics.NewSystemCollector(a.cfg.DataDir, a.logger)
		go collector.Run(ctx, a.metrics, time.Duration(a.cfg.Metrics.Interval)*time.Second)
	}

	var refresher *statscache.Refresher
	if a.cfg.Stats.Enable {
		if err := a.openStatsCache(); err != nil {
			return fmt.Errorf("failed to open statistics cache: %w", err)
		}
		refresher = statscache.NewRefresher(a.accessLog, a.statsCache, a.clock, a.metrics, a.logger)
		if err := refresher.Start(a.cfg.Stats.RefreshSchedule); err != nil {
			return err
		}
	}

	metricsPath := ""
	if a.cfg.Metrics.Enable {
		metricsPath = a.cfg.Metrics.Path
	}
	srv := server.New(server.Options{
		Listen:      a.cfg.Listen,
		MetricsPath: metricsPath,
		DB:          a.db,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})
	srv.SetVersion(version, commit, date)

	err = srv.Start(ctx)

	if refresher != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		refresher.Stop(stopCtx)
		stopCancel()
	}

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	a.logger.Info("sharegate stopped")
	return nil
}
