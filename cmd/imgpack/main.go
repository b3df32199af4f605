package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"imgpack/internal/auth"
	"imgpack/internal/config"
	"imgpack/internal/http/middleware"
	"imgpack/internal/http/server"
	"imgpack/internal/infra/logging"
	"imgpack/internal/infra/pdfraster"
	"imgpack/internal/metrics"
	"imgpack/internal/pipeline"
	"imgpack/internal/raster"
)

func main() {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	if path := parseFlags(os.Args[1:]); path != "" {
		os.Setenv("CONFIG_PATH", path)
	}

	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	var rdb *redis.Client
	if cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.ArchiveDB,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var keys *auth.Store
	if cfg.AuthEnabled() {
		keys = auth.NewStore(cfg.Auth.Postgres)
		if err := keys.Load(ctx); err != nil {
			logging.Error("Failed to load API keys", "error", err)
		}
		go keys.Refresh(ctx, cfg.Auth.ReloadInterval)
	}

	var renderer pdfraster.Renderer
	if cfg.Pipeline.AllowPDFInput {
		r, err := pdfraster.NewRenderer(cfg.PDF.Renderer, pdfraster.Options{
			DPI:            cfg.PDF.DPI,
			MaxPages:       cfg.Limits.MaxPDFPages,
			Workers:        cfg.PDF.Workers,
			AcquireTimeout: cfg.PDF.AcquireTimeout,
		})
		if err != nil {
			logging.Error("PDF renderer unavailable, PDF uploads disabled", "renderer", cfg.PDF.Renderer, "error", err)
		} else {
			renderer = r
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metrics.Options{})
	m.Register(reg)

	p := pipeline.New(pipeline.Options{
		MaxUploadBytes:   cfg.Limits.MaxUploadBytes,
		MaxDimension:     cfg.Limits.MaxDimension,
		MaxPDFPages:      cfg.Limits.MaxPDFPages,
		AllowPDFInput:    cfg.Pipeline.AllowPDFInput,
		AllowPDFAssembly: cfg.Pipeline.AllowPDFAssembly,
	}, raster.New(cfg.Pipeline.ResampleFilter, cfg.Pipeline.JPEGQuality), renderer, m)

	app, err := server.New(server.Deps{
		Config:   cfg,
		Pipeline: p,
		Redis:    rdb,
		Keys:     keys,
		Storage:  middleware.NewStorage(cfg),
		Gatherer: reg,
	})
	if err != nil {
		logging.Error("Failed to build app", "error", err)
		os.Exit(1)
	}

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed

	cancel()
	if err := closeAll(renderer, keys, rdb); err != nil {
		logging.Warn("Shutdown cleanup failed", "error", err)
	}
}

// parseFlags returns the --config value. Unknown flags are ignored.
func parseFlags(args []string) string {
	fs := pflag.NewFlagSet("imgpack", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	configPath := fs.String("config", "", "path to the YAML config file (overrides CONFIG_PATH)")
	if err := fs.Parse(args); err != nil {
		return ""
	}
	return *configPath
}

// startServer starts the Fiber app and listens for shutdown signals.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()
	logging.Info("Server listening", "addr", cfg.ListenAddr())

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	signal.Stop(sigint)

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}

func closeAll(renderer pdfraster.Renderer, keys *auth.Store, rdb *redis.Client) error {
	var err error
	if renderer != nil {
		err = multierr.Append(err, renderer.Close())
	}
	if keys != nil {
		err = multierr.Append(err, keys.Close())
	}
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	return err
}
