package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
	"github.com/keshon/pipebot/internal/guild"
)

// GuildConfigs provides the settings snapshot for a guild. An empty guildID
// means a direct message and should yield defaults.
type GuildConfigs interface {
	GuildConfig(ctx context.Context, guildID string) (guild.Config, error)
}

// Stats receives pipeline telemetry. Calls must not block.
type Stats interface {
	IncrementPiped(guildID string)
}

// Renderer delivers the outcome of a run back to the invoker.
type Renderer interface {
	Render(ctx context.Context, inv *command.Invoker, out Outcome) error
}

// Outcome is what a run produced. At most one of Notice and Response is
// shown to the user.
type Outcome struct {
	RunID string
	// Notice is an admission or resolution error.
	Notice   string
	Response *command.Response
	// Steps is the number of commands that executed.
	Steps int
	// Silent is set when the input was not meant for the bot at all.
	Silent bool
}

// Message returns the single user-facing text of the run.
func (o Outcome) Message() string {
	switch {
	case o.Notice != "":
		return o.Notice
	case o.Response.Failed():
		return o.Response.Error
	default:
		return o.Response.Text()
	}
}

// Failed reports whether the run ended on any kind of error.
func (o Outcome) Failed() bool {
	return o.Notice != "" || o.Response.Failed()
}

// Deps are the collaborators of an Executor. Registry and Configs are
// required.
type Deps struct {
	Registry    *command.Registry
	Configs     GuildConfigs
	Stats       Stats
	Renderer    Renderer
	Middlewares []command.Middleware
	Logger      *zap.Logger
}

// Executor runs pipelines. It holds no per-run state and is safe for
// concurrent use.
type Executor struct {
	registry    *command.Registry
	configs     GuildConfigs
	stats       Stats
	renderer    Renderer
	middlewares []command.Middleware
	logger      *zap.Logger
}

type noStats struct{}

func (noStats) IncrementPiped(string) {}

func NewExecutor(d Deps) *Executor {
	e := &Executor{
		registry:    d.Registry,
		configs:     d.Configs,
		stats:       d.Stats,
		renderer:    d.Renderer,
		middlewares: d.Middlewares,
		logger:      d.Logger,
	}
	if e.stats == nil {
		e.stats = noStats{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Registry returns the registry commands are resolved against.
func (e *Executor) Registry() *command.Registry { return e.registry }

// Handle runs the pipeline for inv and hands the outcome to the renderer.
func (e *Executor) Handle(ctx context.Context, inv *command.Invoker) {
	out := e.Run(ctx, inv)
	if out.Silent || e.renderer == nil {
		return
	}
	// An interaction is acknowledged even when there is nothing to say.
	if out.Message() == "" && !out.Failed() && inv.Surface != command.SurfaceInteraction {
		return
	}
	if err := e.renderer.Render(ctx, inv, out); err != nil {
		e.logger.Error("Failed to render pipeline outcome", zap.String("run", out.RunID), zap.Error(err))
	}
}

// Run executes the pipeline for inv and returns its outcome without
// rendering it.
func (e *Executor) Run(ctx context.Context, inv *command.Invoker) Outcome {
	runID := uuid.NewString()
	log := e.logger.With(zap.String("run", runID), zap.String("guild", inv.GuildID),
		zap.String("channel", inv.ChannelID), zap.Stringer("surface", inv.Surface))

	cfg, err := e.configs.GuildConfig(ctx, inv.GuildID)
	if err != nil {
		log.Error("Failed to load guild configuration", zap.Error(err))
		return Outcome{RunID: runID, Silent: true}
	}

	segs := e.segments(inv, cfg)
	if v := Admit(inv, cfg, segs, e.registry); v.Abort {
		if v.Message != "" {
			log.Debug("Pipeline rejected", zap.String("reason", v.Message))
		}
		return Outcome{RunID: runID, Notice: v.Message, Silent: v.Message == ""}
	}

	r := &run{
		e:     e,
		inv:   inv,
		cfg:   cfg,
		segs:  segs,
		marks: make([]mark, len(segs)),
		log:   log,
	}
	out := r.execute(ctx)
	out.RunID = runID
	return out
}

func (e *Executor) segments(inv *command.Invoker, cfg guild.Config) []Segment {
	if inv.Surface == command.SurfaceInteraction {
		raw := strings.TrimSpace(strings.Join(append([]string{cfg.Prefix + inv.Command}, inv.Path...), " "))
		return []Segment{{Raw: raw, Name: inv.Command}}
	}
	return Split(inv.Content, cfg.Prefix)
}

// run is the state of one pipeline execution.
type run struct {
	e    *Executor
	inv  *command.Invoker
	cfg  guild.Config
	segs []Segment
	// marks parallels segs.
	marks []mark
	log   *zap.Logger
}

// mark records how a segment came to be.
type mark struct {
	// expanded is set on segments produced by a user alias; they are not
	// expanded again.
	expanded bool
	// alias is the user alias that produced the segment, on the first
	// segment of its expansion only.
	alias string
}

// resolved is the outcome of the Resolving state for one segment.
type resolved struct {
	def   *command.Definition
	entry command.Entry
	// chain runs from the top-level definition down to def.
	chain []*command.Definition
	alias string
	// depth is how many tokens of the segment named the command and its
	// subcommands.
	depth int
}

func (r *run) execute(ctx context.Context) Outcome {
	var (
		prev  *command.Response
		steps int
	)
	for i := 0; i < len(r.segs); i++ {
		res, v := r.resolve(i)
		if v.Abort {
			return Outcome{Notice: v.Message, Steps: steps}
		}
		if v := CheckCommand(res.chain, r.cfg, r.inv.Surface); v.Abort {
			return Outcome{Notice: v.Message, Steps: steps}
		}

		in, v := r.prepare(i, res, prev)
		if v.Abort {
			return Outcome{Notice: v.Message, Steps: steps}
		}

		resp := r.invoke(ctx, res.def, in)
		steps++

		if resp.Failed() {
			r.log.Debug("Pipeline stopped on error response", zap.Int("step", i), zap.String("command", res.def.Name))
			return Outcome{Response: resp, Steps: steps}
		}
		if res.def.NotPipable {
			return Outcome{Response: resp, Steps: steps}
		}
		if in.Meta.WillBePiped {
			r.e.stats.IncrementPiped(r.inv.GuildID)
		}
		prev = resp
	}
	return Outcome{Response: prev, Steps: steps}
}

// resolve looks up segment i, expanding a user alias in place when the
// registry does not know the name, then descends into subcommands.
func (r *run) resolve(i int) (resolved, Verdict) {
	if v := r.expandAlias(i); v.Abort {
		return resolved{}, v
	}
	seg := r.segs[i]
	alias := r.marks[i].alias

	entry, ok := r.e.registry.Entry(seg.Name)
	if !ok {
		shown := seg.Name
		if alias != "" {
			shown = alias
		}
		return resolved{}, reject("Unknown command `%s%s`. Use `%shelp` to see what's available.", r.cfg.Prefix, shown, r.cfg.Prefix)
	}
	if alias == "" && entry.Type != command.PrimaryName {
		alias = entry.Name
	}

	chain := append(slices.Clone(entry.Parents), entry.Definition)
	res := resolved{def: entry.Definition, entry: entry, alias: alias, depth: 1}

	var path []string
	if r.inv.Surface == command.SurfaceInteraction {
		path = r.inv.Path
	} else {
		path = strings.Fields(seg.Raw)[1:]
	}
	for _, tok := range path {
		sub := res.def.Subcommand(tok)
		if sub == nil {
			break
		}
		res.def = sub
		chain = append(chain, sub)
		res.depth++
	}
	res.chain = chain

	if res.def.Body == nil {
		names := make([]string, 0, len(res.def.Subcommands))
		for _, s := range res.def.Subcommands {
			names = append(names, s.Name)
		}
		return resolved{}, reject("`%s%s` needs a subcommand: %s.", r.cfg.Prefix, res.def.Name, strings.Join(names, ", "))
	}
	return res, admitted
}

// expandAlias splices the guild alias named by segment i into the pipeline
// when the registry does not know that name. The grown pipeline is held to
// the same limits as typed input.
func (r *run) expandAlias(i int) Verdict {
	seg := r.segs[i]
	if r.marks[i].expanded || seg.Name == "" {
		return admitted
	}
	if _, ok := r.e.registry.Entry(seg.Name); ok {
		return admitted
	}
	expansion, found := r.cfg.Alias(seg.Name)
	if !found {
		return admitted
	}
	r.expand(i, expansion)
	if n := Limit(r.cfg); len(r.segs) > n {
		return reject("The alias `%s` expands to more than %d piped commands.", seg.Name, n)
	}
	if len(r.segs) > 1 && r.cfg.DisableCommandPiping {
		return reject("Command piping is disabled in this server.")
	}
	return admitted
}

// expand replaces segment i with the segments of an alias expansion. The
// arguments typed after the alias name are appended to the first of them,
// where the chain takes its input.
func (r *run) expand(i int, expansion string) {
	name := r.segs[i].Name
	rest := stripTokens(r.segs[i].Raw, 1)
	parts := Split(expansion, r.cfg.Prefix)
	if rest != "" {
		parts[0] = newSegment(strings.TrimSpace(parts[0].Raw+" "+rest), r.cfg.Prefix)
	}

	segs := make([]Segment, 0, len(r.segs)-1+len(parts))
	segs = append(segs, r.segs[:i]...)
	segs = append(segs, parts...)
	segs = append(segs, r.segs[i+1:]...)

	marks := make([]mark, 0, len(segs))
	marks = append(marks, r.marks[:i]...)
	for j := range parts {
		m := mark{expanded: true}
		if j == 0 {
			m.alias = name
		}
		marks = append(marks, m)
	}
	marks = append(marks, r.marks[i+1:]...)

	r.log.Debug("Expanded user alias", zap.String("alias", name), zap.String("expansion", expansion))
	r.segs, r.marks = segs, marks
}

// prepare computes the piping flags and working text of step i and builds
// the command input.
func (r *run) prepare(i int, res resolved, prev *command.Response) (*command.Input, Verdict) {
	def := res.def
	// A terminal command takes the rest of the line verbatim, so the next
	// segment is only expanded when output will flow into it.
	if !def.NotPipable && i < len(r.segs)-1 {
		if v := r.expandAlias(i + 1); v.Abort {
			return nil, v
		}
	}
	total := len(r.segs)
	willBePiped := !def.NotPipable && total > 1 && i < total-1

	meta := command.Meta{
		EntryType:   res.entry.Type,
		AliasUsed:   res.alias,
		Previous:    prev,
		WillBePiped: willBePiped,
		Index:       i,
		Total:       total,
	}

	if i < total-1 {
		next := r.segs[i+1]
		meta.NextPipeMessage = next.Raw
		meta.PipingTo = next.Name
		if nextDef := r.e.registry.Get(next.Name); nextDef != nil {
			meta.PipingTo = nextDef.Name
			if willBePiped && !def.CanPipeTo(nextDef) {
				return nil, reject("`%s%s` can't be piped into `%s%s`.", r.cfg.Prefix, def.Name, r.cfg.Prefix, nextDef.Name)
			}
		}
	}

	var content string
	if def.NotPipable {
		content = withPrefix(joinSegments(r.segs[i:]), r.cfg.Prefix)
	} else {
		content = withPrefix(r.segs[i].Raw, r.cfg.Prefix)
	}

	var (
		text string
		vals []args.Value
	)
	if r.inv.Surface == command.SurfaceInteraction {
		vals = r.inv.Options
		text = args.Join(vals)
	} else {
		text = stripTokens(strings.TrimPrefix(content, r.cfg.Prefix), res.depth)
		vals = args.FromText(text, def.Options)
	}

	return command.NewInput(r.inv, def, r.cfg.Prefix, content, text, vals, meta, r.e.registry), admitted
}

// invoke runs the command body. Errors and panics become an error response
// so that a failing command only ends its own pipeline.
func (r *run) invoke(ctx context.Context, def *command.Definition, in *command.Input) *command.Response {
	mws := append([]command.Middleware{command.WithRecover()}, r.e.middlewares...)
	body := command.Apply(def.Body, mws...)

	resp, err := body.Execute(ctx, in)
	if err != nil {
		fields := []zap.Field{zap.String("command", def.Name), zap.Int("step", in.Meta.Index), zap.Error(err)}
		var pe *command.PanicError
		if errors.As(err, &pe) {
			fields = append(fields, zap.ByteString("stack", pe.Stack))
		}
		r.log.Error("Command failed", fields...)
		return command.Fail(def.Name, "Something went wrong while running `%s%s`.", r.cfg.Prefix, def.Name)
	}
	if resp == nil {
		resp = command.Reply(def.Name, nil)
	}
	if resp.From == "" {
		resp.From = def.Name
	}
	return resp
}

func (o Outcome) String() string {
	return fmt.Sprintf("run=%s steps=%d failed=%t message=%q", o.RunID, o.Steps, o.Failed(), o.Message())
}
