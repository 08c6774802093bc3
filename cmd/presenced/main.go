package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"animepresence/internal/api"
	"animepresence/internal/bridge"
	"animepresence/internal/bus"
	"animepresence/internal/collector"
	"animepresence/internal/config"
	"animepresence/internal/dom"
	"animepresence/internal/nativehost"
	"animepresence/internal/server"
	"animepresence/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	inspect := flag.String("inspect", "", "print the state derived from a saved HTML page and exit")
	pageURL := flag.String("url", "", "page URL for -inspect")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	if *inspect != "" {
		if err := inspectPage(*inspect, *pageURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("inspect failed")
		}
		return
	}

	logger.Info().
		Str("version", api.Version).
		Msg("starting presence bridge")

	// Initialize storage
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	pattern, err := bus.ParsePattern(cfg.Bridge.PagePattern)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid page pattern")
	}
	hub := bus.NewHub(pattern, cfg.Bridge.QueueSize, logger)

	launcher := nativehost.NewLauncher(cfg.Bridge.ManifestDirs, cfg.Bridge.ExtensionOrigin, logger)

	b := bridge.New(bridge.Config{
		HostName:          cfg.Bridge.HostName,
		KeepaliveInterval: cfg.Bridge.KeepaliveInterval,
		ReconnectDelay:    cfg.Bridge.ReconnectDelay,
	}, launcher, store, hub, logger)

	// Create server
	handler := api.NewHandler(b, store, hub, logger)
	srv := server.New(cfg, logger, handler, bus.NewHandler(hub, b, logger))

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(gctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("received shutdown signal")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("server stopped")
}

// inspectPage runs one collection over a static HTML file.
func inspectPage(path, url string, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := dom.ParseHTML(url, f)
	if err != nil {
		return err
	}

	c := collector.New(collector.DefaultConfig(), doc, nil, logger)
	state := c.Collect()

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}
