package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"backtest_go/internal/app"

	"github.com/joho/godotenv"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	mode := flag.String("mode", "", "override run mode: backtest | walkforward | paper")
	flag.Parse()

	// .env is optional; environment variables override config values.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	// Pprof server (localhost only for security)
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Warn("pprof server stopped", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if *mode != "" {
		bootstrap.Config.App.Mode = *mode
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch bootstrap.Config.App.Mode {
	case "backtest":
		err = bootstrap.RunBacktest(ctx)
	case "walkforward":
		err = bootstrap.RunWalkForward(ctx)
	case "paper":
		err = bootstrap.RunPaper(ctx)
	default:
		slog.Error("Unknown mode", slog.String("mode", bootstrap.Config.App.Mode))
		os.Exit(1)
	}

	if err != nil {
		slog.Error("Run failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Done")
}
