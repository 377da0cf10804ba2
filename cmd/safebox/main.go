package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/safebox/internal/cli"
	"github.com/dmitrijs2005/safebox/internal/config"
	"github.com/dmitrijs2005/safebox/internal/flagx"
	"github.com/dmitrijs2005/safebox/internal/logging"
	"github.com/dmitrijs2005/safebox/internal/metrics"
	"github.com/dmitrijs2005/safebox/internal/safebox"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()

	safe, err := safebox.Open(ctx, cfg.DatabasePath, safebox.Options{
		Params:                 cfg.HasherParams(),
		RequireCurrentPassword: cfg.RequireCurrentPassword,
		RehashOnVerify:         cfg.RehashOnVerify,
		Logger:                 logger.With("db", cfg.DatabasePath),
		Metrics:                metrics.NewMetrics(reg),
	})
	if err != nil {
		logger.Error(ctx, "open failed", "error", err)
		return 1
	}
	defer safe.Close()

	app := cli.NewApp(safe, cfg, os.Stdin, os.Stdout,
		cli.WithLogger(logger.With("component", "janitor")),
		cli.WithGatherer(reg),
	)

	args := flagx.Positional(os.Args[1:], config.ValueFlags)
	if err := app.Run(ctx, args); err != nil {
		switch {
		case errors.Is(err, cli.ErrMismatch):
		case errors.Is(err, cli.ErrUsage):
			fmt.Fprintln(os.Stderr, err)
			return 2
		default:
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		return 1
	}
	return 0
}
