// Package main wires together the beachwatch binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/JakeFAU/beachwatch-crawler/internal/app"
	"github.com/JakeFAU/beachwatch-crawler/internal/config"
	"github.com/JakeFAU/beachwatch-crawler/internal/logging"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run one collection and exit")
	limit := flag.Int("limit", -1, "Only fetch the first N beaches (0 for all); overrides source.test_limit")
	bypass := flag.Bool("bypass", false, "Treat source.base_url as a single beach page")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return 0
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	if *limit >= 0 {
		cfg.Source.TestLimit = *limit
	}
	if *bypass {
		cfg.Source.Bypass = true
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		// Sync fails on stdout/stderr for some terminals; nothing useful to do about it.
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.WithVersion(version))
	if err != nil {
		logger.Error("app init failed", zap.Error(err))
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("app close failed", zap.Error(err))
		}
	}()

	if *once {
		summary, err := a.RunOnce(ctx)
		if err != nil {
			logger.Error("collection failed", zap.Error(err))
			return 1
		}
		logger.Info("collection complete",
			zap.String("run_id", summary.RunID),
			zap.Int("rows", summary.Rows),
			zap.Int("stale_rows", summary.StaleRows),
		)
		return 0
	}

	if !cfg.Schedule.Enabled && !cfg.Server.Enabled {
		logger.Error("nothing to serve: enable schedule or server, or pass -once")
		return 2
	}
	if err := a.Serve(ctx); err != nil {
		logger.Error("serve failed", zap.Error(err))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
