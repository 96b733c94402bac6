package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/pipebot/internal/app"
	"github.com/keshon/pipebot/internal/config"
	"github.com/keshon/pipebot/internal/discord"
	"github.com/keshon/pipebot/internal/logging"
	"github.com/keshon/pipebot/internal/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pipebot:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, app.Options{
		StoragePath:  cfg.StoragePath,
		StatsPath:    cfg.StatsPath,
		CommandsFile: cfg.CommandsFile,
		Defaults:     cfg.GuildDefaults(),
		Latency:      session.HeartbeatLatency,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	exec := a.Executor(discord.NewRenderer(session, logger))
	bot := discord.NewBot(cfg, session, exec, logger)

	logger.Info("Starting bot", zap.Int("commands", len(a.Registry.Commands())))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	if a.Stats != nil {
		g.Go(func() error { return reportDropped(gctx, a.Stats, logger) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Bot exited cleanly")
	return nil
}

// reportDropped logs statistics events lost to a full buffer.
func reportDropped(ctx context.Context, s *stats.Sink, logger *zap.Logger) error {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	var last int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Dropped(); n > last {
				logger.Warn("Statistics events dropped", zap.Int64("total", n), zap.Int64("new", n-last))
				last = n
			}
		}
	}
}
