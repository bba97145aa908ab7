package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/winspan/blocksync/internal/gateway"
	"github.com/winspan/blocksync/internal/runner"
	"github.com/winspan/blocksync/internal/storage"
	"github.com/winspan/blocksync/internal/web"
	"github.com/winspan/blocksync/pkg/config"
	"github.com/winspan/blocksync/pkg/logger"
)

func main() {
	var (
		configPath string
		once       bool
	)
	flag.StringVar(&configPath, "config", "/etc/blocksync/config.yaml", "path to config file")
	flag.BoolVar(&once, "once", false, "run a single pass and exit even if daemon mode is configured")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Prefix: cfg.App.Name,
	})
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer lg.Close()
	if cfg.IsDebug() {
		lg.SetLevel(logger.DEBUG)
	}

	var history *storage.History
	if cfg.History.Enabled {
		history, err = storage.NewHistory(cfg.History.SQLiteFile)
		if err != nil {
			lg.Fatal("open history: %v", err)
		}
		defer history.Close()
	}

	rn := runner.New(cfg, lg, gateway.DialRouterOS, history)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once || !cfg.Daemon.Enabled {
		summary, err := rn.RunOnce(ctx)
		if err != nil {
			lg.Fatal("run: %v", err)
		}
		for _, d := range summary.Devices {
			lg.Info("device %s: %s (%d blocked, %d failed)",
				d.Device, d.Status, len(d.Blocked), d.Failed)
		}
		return
	}

	// daemon mode
	if cfg.Monitoring.Enabled {
		r := chi.NewRouter()
		web.BindRoutes(r, rn, history, cfg.Monitoring.AdminToken)
		go func() {
			lg.Info("admin api listening on %s", cfg.Monitoring.Listen)
			if err := http.ListenAndServe(cfg.Monitoring.Listen, r); err != nil {
				lg.Error("admin api: %v", err)
			}
		}()
	}

	lg.Info("starting, interval %v", cfg.GetDaemonInterval())
	rn.Start(ctx)
	lg.Info("shutting down")
}
