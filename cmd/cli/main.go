package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keshon/pipebot/internal/app"
	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/config"
	"github.com/keshon/pipebot/internal/logging"
	"github.com/keshon/pipebot/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	storage  string
	stats    string
	commands string
	guild    string
	logLevel string
}

// session is one CLI process talking to the pipeline as a single author in a
// single channel.
type session struct {
	opts   *options
	cfg    *config.Config
	app    *app.App
	exec   *pipeline.Executor
	out    io.Writer
	logger *zap.Logger
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &options{}
	var s *session

	root := &cobra.Command{
		Use:   "pipebot",
		Short: "Run pipebot command lines from a terminal",
		Long: `Run pipebot command lines without Discord.

Guild settings live in memory unless --storage names a datastore file, so
aliases and settings changed here are forgotten on exit by default.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			s, err = openSession(cmd.Context(), opts, out)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if s == nil {
				return nil
			}
			defer func() { _ = s.logger.Sync() }()
			return s.app.Close()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	f := root.PersistentFlags()
	f.StringVar(&opts.storage, "storage", "", "guild settings datastore file (default: in memory)")
	f.StringVar(&opts.stats, "stats", "", "SQLite statistics database (default: disabled)")
	f.StringVar(&opts.commands, "commands", "", "command declarations file (default: built in)")
	f.StringVar(&opts.guild, "guild", "cli", "guild ID the terminal acts in")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		&cobra.Command{
			Use:   "run <line>",
			Short: "Run one command line, pipes included",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, argv []string) error {
				s.handle(cmd.Context(), strings.Join(argv, " "))
				return nil
			},
		},
		&cobra.Command{
			Use:   "repl",
			Short: "Read command lines from standard input until EOF",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return s.repl(cmd.Context(), cmd.InOrStdin())
			},
		},
		&cobra.Command{
			Use:   "commands",
			Short: "List the registered commands",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				s.list()
				return nil
			},
		},
	)
	return root
}

func openSession(ctx context.Context, opts *options, out io.Writer) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: opts.logLevel, Console: true})
	if err != nil {
		return nil, err
	}

	commandsFile := opts.commands
	if commandsFile == "" {
		commandsFile = cfg.CommandsFile
	}
	a, err := app.New(ctx, app.Options{
		StoragePath:  opts.storage,
		StatsPath:    opts.stats,
		CommandsFile: commandsFile,
		Defaults:     cfg.GuildDefaults(),
	}, logger)
	if err != nil {
		return nil, err
	}

	return &session{
		opts:   opts,
		cfg:    cfg,
		app:    a,
		exec:   a.Executor(&terminalRenderer{out: out}),
		out:    out,
		logger: logger,
	}, nil
}

func (s *session) invoker(line string) *command.Invoker {
	name := os.Getenv("USER")
	if name == "" {
		name = "terminal"
	}
	return &command.Invoker{
		Surface:    command.SurfaceMessage,
		GuildID:    s.opts.guild,
		ChannelID:  "terminal",
		AuthorID:   "cli",
		AuthorName: name,
		Admin:      true,
		Content:    line,
	}
}

func (s *session) handle(ctx context.Context, line string) {
	s.exec.Handle(ctx, s.invoker(line))
}

func (s *session) repl(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		s.handle(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *session) list() {
	for _, def := range s.app.Registry.Commands() {
		names := s.cfg.DefaultPrefix + def.Name
		if len(def.Aliases) > 0 {
			names += " (" + strings.Join(def.Aliases, ", ") + ")"
		}
		fmt.Fprintf(s.out, "%-28s %s\n", names, def.Description)
		for _, sub := range def.Subcommands {
			fmt.Fprintf(s.out, "  %-26s %s\n", sub.Name, sub.Description)
		}
	}
}
