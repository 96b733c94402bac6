// Package app wires storage, statistics and the built-in commands into an
// executor. The Discord bot and the CLI differ only in how they feed it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/commands"
	"github.com/keshon/pipebot/internal/guild"
	"github.com/keshon/pipebot/internal/pipeline"
	"github.com/keshon/pipebot/internal/stats"
	"github.com/keshon/pipebot/internal/storage"
)

type Options struct {
	// StoragePath is the guild datastore file; empty keeps settings in memory.
	StoragePath string
	// StatsPath is the SQLite statistics database; empty disables statistics.
	StatsPath string
	// CommandsFile replaces the embedded command declarations when set.
	CommandsFile string
	Defaults     guild.Config
	Latency      func() time.Duration
}

type App struct {
	Storage  *storage.Storage
	Stats    *stats.Sink
	Registry *command.Registry
	log      *zap.Logger
}

// New opens storage and statistics and registers the built-in commands.
// On error everything already opened is closed again.
func New(ctx context.Context, opts Options, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{log: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if opts.StoragePath == "" {
		a.Storage = storage.NewMemory(opts.Defaults, logger)
	} else if a.Storage, err = storage.New(opts.StoragePath, opts.Defaults, logger); err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if opts.StatsPath != "" {
		if a.Stats, err = stats.Open(ctx, opts.StatsPath, logger); err != nil {
			return nil, fmt.Errorf("open stats: %w", err)
		}
	}

	var doc []byte
	if opts.CommandsFile != "" {
		if doc, err = os.ReadFile(opts.CommandsFile); err != nil {
			return nil, fmt.Errorf("read command declarations: %w", err)
		}
	}

	deps := commands.Deps{Settings: a.Storage, Latency: opts.Latency}
	if a.Stats != nil {
		deps.Stats = a.Stats
	}
	a.Registry = command.NewRegistry(logger)
	if err = commands.Load(a.Registry, deps, doc, logger); err != nil {
		return nil, fmt.Errorf("load commands: %w", err)
	}
	return a, nil
}

// Executor builds a pipeline executor that renders through r.
func (a *App) Executor(r pipeline.Renderer) *pipeline.Executor {
	d := pipeline.Deps{
		Registry: a.Registry,
		Configs:  a.Storage,
		Renderer: r,
		Middlewares: []command.Middleware{
			command.WithCommandLog(a.Storage, a.log),
		},
		Logger: a.log,
	}
	if a.Stats != nil {
		d.Stats = a.Stats
	}
	return pipeline.NewExecutor(d)
}

// Close flushes statistics and the datastore.
func (a *App) Close() error {
	var errs []error
	if a.Stats != nil {
		errs = append(errs, a.Stats.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	return errors.Join(errs...)
}
