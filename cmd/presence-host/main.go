// presence-host is launched by the browser over native messaging. stdout
// carries the protocol, so logs go to stderr.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"animepresence/internal/config"
	"animepresence/internal/discord"
	"animepresence/internal/host"
)

func main() {
	configPath := flag.String("config", os.Getenv("PRESENCE_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !cfg.Logging.Pretty}).
		With().
		Timestamp().
		Str("component", "host").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := discord.NewClient(cfg.Discord.ClientID, cfg.Discord.PipePath, logger)
	h := host.New(os.Stdin, os.Stdout, client, cfg.Discord.UpdateInterval, logger)

	if err := h.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Fatal")
		os.Exit(1)
	}
}
