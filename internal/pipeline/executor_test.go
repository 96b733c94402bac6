package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
	"github.com/keshon/pipebot/internal/guild"
)

var echoBody = command.BodyFunc(func(_ context.Context, in *command.Input) (*command.Response, error) {
	return command.Reply(in.Command.Name, in.TextOrPiped()), nil
})

var upperBody = command.BodyFunc(func(_ context.Context, in *command.Input) (*command.Response, error) {
	return command.Reply(in.Command.Name, strings.ToUpper(in.TextOrPiped())), nil
})

type staticConfigs struct {
	cfg guild.Config
	err error
}

func (s staticConfigs) GuildConfig(context.Context, string) (guild.Config, error) {
	return s.cfg.Clone(), s.err
}

type countingStats struct {
	mu    sync.Mutex
	piped map[string]int
}

func (c *countingStats) IncrementPiped(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.piped == nil {
		c.piped = map[string]int{}
	}
	c.piped[guildID]++
}

func (c *countingStats) count(guildID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.piped[guildID]
}

type recordingRenderer struct {
	mu   sync.Mutex
	outs []Outcome
}

func (r *recordingRenderer) Render(_ context.Context, _ *command.Invoker, out Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs = append(r.outs, out)
	return nil
}

// spy records every input a command receives.
type spy struct {
	mu     sync.Mutex
	inputs []*command.Input
	next   command.Body
}

func (s *spy) Execute(ctx context.Context, in *command.Input) (*command.Response, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
	return s.next.Execute(ctx, in)
}

func (s *spy) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

type fixture struct {
	exec     *Executor
	stats    *countingStats
	renderer *recordingRenderer
	spies    map[string]*spy
}

func newFixture(t *testing.T, mutate func(*guild.Config)) *fixture {
	t.Helper()
	cfg := guild.Default()
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		stats:    &countingStats{},
		renderer: &recordingRenderer{},
		spies:    map[string]*spy{},
	}
	wrap := func(name string, b command.Body) command.Body {
		s := &spy{next: b}
		f.spies[name] = s
		return s
	}

	set := &command.Definition{Name: "set", Aliases: []string{"add"}, RootAliases: []string{"mkalias"}, Body: wrap("set", echoBody)}
	defs := []*command.Definition{
		{Name: "echo", Aliases: []string{"say"}, Tags: []string{"text"}, Body: wrap("echo", echoBody)},
		{Name: "upper", Tags: []string{"text"}, Body: wrap("upper", upperBody)},
		{Name: "capture", NotPipable: true, Body: wrap("capture", echoBody)},
		{Name: "fail", Body: wrap("fail", command.BodyFunc(func(_ context.Context, in *command.Input) (*command.Response, error) {
			return command.Fail(in.Command.Name, "fail says no"), nil
		}))},
		{Name: "boom", Body: wrap("boom", command.BodyFunc(func(context.Context, *command.Input) (*command.Response, error) {
			panic("kaboom")
		}))},
		{Name: "broken", Body: wrap("broken", command.BodyFunc(func(context.Context, *command.Input) (*command.Response, error) {
			return nil, errors.New("database unreachable")
		}))},
		{Name: "quiet", Body: wrap("quiet", command.BodyFunc(func(context.Context, *command.Input) (*command.Response, error) {
			return nil, nil
		}))},
		{Name: "picky", PipableTo: []string{"text"}, Body: wrap("picky", echoBody)},
		{Name: "alias", Tags: []string{"settings"}, Subcommands: []*command.Definition{set}},
		{Name: "count", Options: []args.Spec{{Name: "n", Kind: args.KindInteger}}, Body: wrap("count", echoBody)},
	}

	reg := command.NewRegistry(nil)
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}

	f.exec = NewExecutor(Deps{
		Registry: reg,
		Configs:  staticConfigs{cfg: cfg},
		Stats:    f.stats,
		Renderer: f.renderer,
	})
	return f
}

func (f *fixture) last(name string) *command.Input {
	s := f.spies[name]
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputs) == 0 {
		return nil
	}
	return s.inputs[len(s.inputs)-1]
}

func TestRun_EchoIntoUpper(t *testing.T) {
	f := newFixture(t, nil)

	out := f.exec.Run(context.Background(), message("p/echo hi | p/upper"))

	require.False(t, out.Failed(), out.String())
	assert.Equal(t, "HI", out.Response.Payload)
	assert.Equal(t, "upper", out.Response.From)
	assert.Equal(t, 2, out.Steps)
	assert.Equal(t, 1, f.stats.count("g1"))
	assert.NotEmpty(t, out.RunID)
}

func TestRun_StepMetadata(t *testing.T) {
	f := newFixture(t, nil)

	out := f.exec.Run(context.Background(), message("p/say hi there | upper | p/echo"))
	require.False(t, out.Failed(), out.String())
	assert.Equal(t, "HI THERE", out.Response.Payload)
	assert.Equal(t, 2, f.stats.count("g1"))

	first := f.spies["echo"].inputs[0]
	assert.Equal(t, command.CommandAlias, first.Meta.EntryType)
	assert.Equal(t, "say", first.Meta.AliasUsed)
	assert.Nil(t, first.Meta.Previous)
	assert.True(t, first.Meta.WillBePiped)
	assert.Equal(t, "upper", first.Meta.PipingTo)
	assert.Equal(t, "upper", first.Meta.NextPipeMessage)
	assert.Equal(t, "p/say hi there", first.Content)
	assert.Equal(t, "hi there", first.Text)
	assert.Equal(t, 0, first.Meta.Index)
	assert.Equal(t, 3, first.Meta.Total)

	second := f.last("upper")
	assert.Equal(t, "p/upper", second.Content, "unprefixed segments are re-prefixed")
	assert.Equal(t, "hi there", second.Meta.Previous.Payload)
	assert.Equal(t, command.PrimaryName, second.Meta.EntryType)
	assert.Empty(t, second.Meta.AliasUsed)
	assert.Equal(t, "echo", second.Meta.PipingTo)

	third := f.last("echo")
	assert.False(t, third.Meta.WillBePiped)
	assert.Empty(t, third.Meta.PipingTo)
	assert.Same(t, f.exec.Registry(), third.Registry)
}

func TestRun_ErrorResponseStopsPipeline(t *testing.T) {
	f := newFixture(t, nil)

	out := f.exec.Run(context.Background(), message("p/echo a | p/fail | p/upper"))

	assert.True(t, out.Failed())
	assert.Empty(t, out.Notice)
	assert.Equal(t, "fail says no", out.Message())
	assert.Equal(t, 2, out.Steps)
	assert.Equal(t, 0, f.spies["upper"].calls())
	assert.Equal(t, 1, f.stats.count("g1"))
}

func TestRun_TerminalCommandConsumesRemainder(t *testing.T) {
	f := newFixture(t, nil)

	out := f.exec.Run(context.Background(), message(`p/echo a | p/capture x \| y | p/upper | p/echo`))

	require.False(t, out.Failed(), out.String())
	assert.Equal(t, 1, f.spies["capture"].calls())
	assert.Equal(t, 0, f.spies["upper"].calls())
	assert.Equal(t, 1, f.spies["echo"].calls())
	assert.Equal(t, 2, out.Steps)

	in := f.last("capture")
	assert.Equal(t, `p/capture x \| y | p/upper | p/echo`, in.Content)
	assert.Equal(t, `x \| y | p/upper | p/echo`, in.Text)
	assert.False(t, in.Meta.WillBePiped)
	assert.Equal(t, "a", in.Meta.Previous.Payload)
	// only the echo step fed a successor
	assert.Equal(t, 1, f.stats.count("g1"))
}

func TestRun_TooManySegmentsExecutesNothing(t *testing.T) {
	f := newFixture(t, func(c *guild.Config) { c.MaxPipedCommands = 2 })

	f.exec.Handle(context.Background(), message("p/echo a | p/upper | p/echo"))

	require.Len(t, f.renderer.outs, 1)
	out := f.renderer.outs[0]
	assert.Equal(t, "You can only pipe up to 2 commands at once, but 3 were given.", out.Notice)
	assert.Equal(t, 0, out.Steps)
	assert.Equal(t, 0, f.spies["echo"].calls())
	assert.Equal(t, 0, f.spies["upper"].calls())
	assert.Equal(t, 0, f.stats.count("g1"))
}

func TestRun_UnknownCommand(t *testing.T) {
	f := newFixture(t, nil)

	out := f.exec.Run(context.Background(), message("p/nope"))
	assert.Equal(t, "Unknown command `p/nope`. Use `p/help` to see what's available.", out.Notice)

	t.Run("later segment still lets earlier ones run", func(t *testing.T) {
		out := f.exec.Run(context.Background(), message("p/echo a | p/nope"))
		assert.Contains(t, out.Notice, "`p/nope`")
		assert.Equal(t, 1, out.Steps)
	})

	t.Run("empty trailing segment fails resolution", func(t *testing.T) {
		out := f.exec.Run(context.Background(), message("p/echo a | "))
		assert.Equal(t, "Unknown command `p/`. Use `p/help` to see what's available.", out.Notice)
	})
}

func TestRun_PanicsAndErrorsAreContained(t *testing.T) {
	for _, name := range []string{"boom", "broken"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)

			f.exec.Handle(context.Background(), message("p/echo a | p/"+name+" | p/upper"))

			require.Len(t, f.renderer.outs, 1)
			out := f.renderer.outs[0]
			assert.Equal(t, "Something went wrong while running `p/"+name+"`.", out.Message())
			assert.Equal(t, name, out.Response.From)
			assert.Equal(t, 0, f.spies["upper"].calls())
		})
	}
}

func TestRun_NilResponseBecomesEmptyReply(t *testing.T) {
	f := newFixture(t, nil)

	f.exec.Handle(context.Background(), message("p/quiet"))
	assert.Empty(t, f.renderer.outs)

	f.exec.Handle(context.Background(), &command.Invoker{Surface: command.SurfaceInteraction, GuildID: "g1", Command: "quiet"})
	require.Len(t, f.renderer.outs, 1, "interactions are always acknowledged")
	assert.False(t, f.renderer.outs[0].Failed())
	assert.Empty(t, f.renderer.outs[0].Message())

	out := f.exec.Run(context.Background(), message("p/quiet | p/upper"))
	require.False(t, out.Failed())
	assert.Equal(t, "quiet", f.last("upper").Meta.Previous.From)
}

func TestRun_PipableToRestriction(t *testing.T) {
	f := newFixture(t, nil)

	out := f.exec.Run(context.Background(), message("p/picky a | p/upper"))
	assert.False(t, out.Failed())

	out = f.exec.Run(context.Background(), message("p/picky a | p/count"))
	assert.Equal(t, "`p/picky` can't be piped into `p/count`.", out.Notice)
	assert.Equal(t, 0, f.spies["count"].calls())

	t.Run("through a guild alias", func(t *testing.T) {
		f := newFixture(t, func(c *guild.Config) {
			c.Aliases = map[string]string{"cnt": "p/count", "loud": "p/upper"}
		})

		out := f.exec.Run(context.Background(), message("p/picky a | p/cnt"))
		assert.Equal(t, "`p/picky` can't be piped into `p/count`.", out.Notice)
		assert.Equal(t, 0, out.Steps)
		assert.Equal(t, 0, f.spies["picky"].calls())
		assert.Equal(t, 0, f.spies["count"].calls())

		out = f.exec.Run(context.Background(), message("p/picky a | p/loud"))
		require.False(t, out.Failed(), out.String())
		assert.Equal(t, "A", out.Response.Payload)
		in := f.last("picky")
		assert.Equal(t, "upper", in.Meta.PipingTo)
		assert.True(t, in.Meta.WillBePiped)
		assert.Equal(t, "loud", f.last("upper").Meta.AliasUsed)
	})
}

func TestRun_Subcommands(t *testing.T) {
	f := newFixture(t, nil)

	out := f.exec.Run(context.Background(), message("p/alias set shout p/upper"))
	require.False(t, out.Failed(), out.String())
	in := f.last("set")
	assert.Equal(t, "shout p/upper", in.Text)
	assert.Equal(t, "set", in.Command.Name)

	out = f.exec.Run(context.Background(), message("p/alias add x"))
	require.False(t, out.Failed())
	assert.Equal(t, "x", f.last("set").Text)

	out = f.exec.Run(context.Background(), message("p/mkalias y"))
	require.False(t, out.Failed())
	in = f.last("set")
	assert.Equal(t, "y", in.Text)
	assert.Equal(t, command.SubcommandRootAlias, in.Meta.EntryType)
	assert.Equal(t, "mkalias", in.Meta.AliasUsed)

	out = f.exec.Run(context.Background(), message("p/alias frobnicate"))
	assert.Equal(t, "`p/alias` needs a subcommand: set.", out.Notice)
}

func TestRun_SubcommandRootAliasHonoursParentRules(t *testing.T) {
	t.Run("blacklisted parent", func(t *testing.T) {
		f := newFixture(t, func(c *guild.Config) { c.BlacklistedCommands = []string{"alias"} })

		out := f.exec.Run(context.Background(), message("p/mkalias x y"))
		assert.Equal(t, "The command `p/alias` is disabled in this server.", out.Notice)
		assert.Equal(t, 0, out.Steps)
		assert.Equal(t, 0, f.spies["set"].calls())
	})

	t.Run("blacklisted parent tag", func(t *testing.T) {
		f := newFixture(t, func(c *guild.Config) { c.BlacklistedTags = []string{"settings"} })

		out := f.exec.Run(context.Background(), message("p/mkalias x y"))
		assert.Equal(t, "The command `p/alias` is disabled in this server (category `settings`).", out.Notice)
		assert.Equal(t, 0, f.spies["set"].calls())
	})
}

func TestRun_UserAliases(t *testing.T) {
	f := newFixture(t, func(c *guild.Config) {
		c.MaxPipedCommands = 3
		c.Aliases = map[string]string{
			"shout": `p/echo | p/upper`,
			"loop":  "loop",
			"wide":  "echo | upper | echo",
		}
	})

	out := f.exec.Run(context.Background(), message("p/shout hey you"))
	require.False(t, out.Failed(), out.String())
	assert.Equal(t, "HEY YOU", out.Response.Payload)
	assert.Equal(t, "hey you", f.last("echo").Text)
	assert.Equal(t, "shout", f.last("echo").Meta.AliasUsed)
	assert.Equal(t, 1, f.stats.count("g1"))

	out = f.exec.Run(context.Background(), message("p/loop"))
	assert.Equal(t, "Unknown command `p/loop`. Use `p/help` to see what's available.", out.Notice)

	out = f.exec.Run(context.Background(), message("p/wide a | p/echo"))
	assert.Equal(t, "The alias `wide` expands to more than 3 piped commands.", out.Notice)

	out = f.exec.Run(context.Background(), message("p/echo a | p/shout"))
	require.False(t, out.Failed(), out.String())
	assert.Equal(t, "A", out.Response.Payload)
	assert.Equal(t, 3, out.Steps)

	t.Run("expansion respects disabled piping", func(t *testing.T) {
		f := newFixture(t, func(c *guild.Config) {
			c.DisableCommandPiping = true
			c.Aliases = map[string]string{"shout": "p/echo | p/upper", "say2": "p/echo"}
		})

		out := f.exec.Run(context.Background(), message("p/shout hey"))
		assert.Equal(t, "Command piping is disabled in this server.", out.Notice)
		assert.Equal(t, 0, out.Steps)
		assert.Equal(t, 0, f.spies["echo"].calls())
		assert.Equal(t, 0, f.spies["upper"].calls())

		out = f.exec.Run(context.Background(), message("p/say2 hey"))
		require.False(t, out.Failed(), out.String())
		assert.Equal(t, "hey", out.Response.Payload)
	})
}

func TestRun_IntegerOptionsFromText(t *testing.T) {
	f := newFixture(t, nil)

	_ = f.exec.Run(context.Background(), message("p/count 12 extra"))
	in := f.last("count")
	require.Len(t, in.Args, 2)
	assert.Equal(t, args.Integer{Key: "n", V: 12}, in.Args[0])
	assert.Equal(t, args.String{Key: "1", V: "extra"}, in.Args[1])
}

func TestRun_Interaction(t *testing.T) {
	f := newFixture(t, nil)

	inv := &command.Invoker{
		Surface: command.SurfaceInteraction,
		GuildID: "g1",
		Command: "alias",
		Path:    []string{"set"},
		Options: []args.Value{args.String{Key: "name", V: "x"}, args.String{Key: "expansion", V: "p/echo"}},
	}
	out := f.exec.Run(context.Background(), inv)
	require.False(t, out.Failed(), out.String())

	in := f.last("set")
	assert.Equal(t, "x p/echo", in.Text)
	assert.Equal(t, "p/alias set", in.Content)
	assert.Equal(t, "p/echo", args.StringOf(in.Args, "expansion"))
}

func TestHandle_SilentInputsAreNotRendered(t *testing.T) {
	f := newFixture(t, nil)

	f.exec.Handle(context.Background(), message("just chatting | not a command"))
	bot := message("p/echo hi")
	bot.AuthorBot = true
	f.exec.Handle(context.Background(), bot)

	assert.Empty(t, f.renderer.outs)
	assert.Equal(t, 0, f.spies["echo"].calls())
}

func TestRun_ConfigFailureIsSilent(t *testing.T) {
	reg := command.NewRegistry(nil)
	exec := NewExecutor(Deps{Registry: reg, Configs: staticConfigs{err: errors.New("store down")}})

	out := exec.Run(context.Background(), message("p/echo"))
	assert.True(t, out.Silent)
	assert.Equal(t, 0, out.Steps)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	f := newFixture(t, nil)

	var wg sync.WaitGroup
	results := make([]Outcome, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			line := "p/echo run | p/upper"
			if i%2 == 1 {
				line = "p/echo a | p/fail | p/upper"
			}
			results[i] = f.exec.Run(context.Background(), message(line))
		}(i)
	}
	wg.Wait()

	for i, out := range results {
		if i%2 == 0 {
			assert.Equal(t, "RUN", out.Response.Payload)
		} else {
			assert.Equal(t, "fail says no", out.Message())
		}
	}
	assert.Equal(t, len(results), f.stats.count("g1"))
}
