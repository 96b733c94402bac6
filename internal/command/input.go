package command

import (
	"github.com/keshon/pipebot/internal/command/args"
)

// Invoker is the transport-neutral description of whoever triggered a
// pipeline run: a chat message or a structured interaction.
type Invoker struct {
	Surface   Surface
	ID        string
	GuildID   string
	ChannelID string
	// CategoryID is the parent category of the channel, when known.
	CategoryID string
	AuthorID   string
	AuthorName string
	AuthorBot  bool
	// Admin is set when the author may manage the guild's settings.
	Admin bool
	// Self is set when the author is the bot itself.
	Self bool

	// Content is the raw message text (SurfaceMessage).
	Content string

	// Command, Path and Options describe an interaction (SurfaceInteraction).
	// Path holds nested subcommand names below Command.
	Command string
	Path    []string
	Options []args.Value

	// Raw is the transport event, for renderers that need it.
	Raw any
}

// Meta is what the pipeline learned while resolving the current step.
type Meta struct {
	EntryType EntryType
	// AliasUsed is the name the user typed when it was not the primary name,
	// including user-defined aliases.
	AliasUsed string
	// Previous is the previous step's response; nil on the first step.
	Previous    *Response
	WillBePiped bool
	// PipingTo is the resolved name of the next step's command.
	PipingTo string
	// NextPipeMessage is the raw text of the next segment.
	NextPipeMessage string
	Index           int
	Total           int
}

// Input is the single value a command body receives. It is built fresh for
// every step and must be treated as read-only.
type Input struct {
	Invoker *Invoker
	Command *Definition
	Prefix  string
	// Content is the working text of this step, prefixed.
	Content string
	// Text is Content with the prefix and command tokens removed.
	Text     string
	Args     []args.Value
	Meta     Meta
	Registry *Registry
}

// NewInput assembles the context for one step. It performs no I/O.
func NewInput(inv *Invoker, def *Definition, prefix, content, text string, vals []args.Value, meta Meta, reg *Registry) *Input {
	return &Input{
		Invoker:  inv,
		Command:  def,
		Prefix:   prefix,
		Content:  content,
		Text:     text,
		Args:     vals,
		Meta:     meta,
		Registry: reg,
	}
}

// Piped returns the previous step's text output, or "" on the first step.
func (in *Input) Piped() string {
	return in.Meta.Previous.Text()
}

// TextOrPiped prefers the step's own text and falls back to piped input.
func (in *Input) TextOrPiped() string {
	if in.Text != "" {
		return in.Text
	}
	return in.Piped()
}
