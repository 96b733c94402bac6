// Package declare turns YAML command declarations into command definitions,
// binding each one to a Go body by its dotted path ("alias.set").
package declare

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
)

var (
	ErrMissingBody = errors.New("no body bound")
	ErrUnusedBody  = errors.New("body bound to no declaration")
)

type File struct {
	Commands []Declaration `yaml:"commands"`
}

type Declaration struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	Aliases       []string      `yaml:"aliases"`
	RootAliases   []string      `yaml:"root_aliases"`
	Tags          []string      `yaml:"tags"`
	PipableTo     []string      `yaml:"pipable_to"`
	NotPipable    bool          `yaml:"not_pipable"`
	AllowBots     bool          `yaml:"allow_bots"`
	InputSurfaces []string      `yaml:"input_surfaces"`
	Options       []Option      `yaml:"options"`
	Subcommands   []Declaration `yaml:"subcommands"`
}

type Option struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
}

// Bodies maps dotted declaration paths to implementations.
type Bodies map[string]command.Body

// Diagnostic is a declaration that was skipped, or a body nothing used.
type Diagnostic struct {
	Path string
	Err  error
}

func (d Diagnostic) Error() string { return d.Path + ": " + d.Err.Error() }
func (d Diagnostic) Unwrap() error { return d.Err }

// Parse decodes a declarations document. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse declarations: %w", err)
	}
	return &f, nil
}

// Build converts declarations into definitions. Declarations that cannot be
// built are skipped and reported; the rest are returned in document order.
func Build(f *File, bodies Bodies) ([]*command.Definition, []Diagnostic) {
	b := builder{bodies: bodies, used: make(map[string]bool)}
	var defs []*command.Definition
	for _, d := range f.Commands {
		if def := b.build(d, ""); def != nil {
			defs = append(defs, def)
		}
	}

	var unused []string
	for path := range bodies {
		if !b.used[path] {
			unused = append(unused, path)
		}
	}
	sort.Strings(unused)
	for _, path := range unused {
		b.diags = append(b.diags, Diagnostic{Path: path, Err: ErrUnusedBody})
	}
	return defs, b.diags
}

type builder struct {
	bodies Bodies
	used   map[string]bool
	diags  []Diagnostic
}

func (b *builder) fail(path string, err error) *command.Definition {
	b.diags = append(b.diags, Diagnostic{Path: path, Err: err})
	return nil
}

func (b *builder) build(d Declaration, parent string) *command.Definition {
	name := strings.ToLower(strings.TrimSpace(d.Name))
	path := name
	if parent != "" {
		path = parent + "." + name
	}
	if name == "" {
		return b.fail(parent+".<unnamed>", fmt.Errorf("%w: missing name", command.ErrInvalidDefinition))
	}
	body, hasBody := b.bodies[path]
	if hasBody {
		b.used[path] = true
	}

	def := &command.Definition{
		Name:        name,
		Description: d.Description,
		Aliases:     d.Aliases,
		RootAliases: d.RootAliases,
		Tags:        d.Tags,
		PipableTo:   d.PipableTo,
		NotPipable:  d.NotPipable,
		AllowBots:   d.AllowBots,
	}

	for _, s := range d.InputSurfaces {
		surface, err := command.ParseSurface(s)
		if err != nil {
			return b.fail(path, err)
		}
		def.Surfaces = append(def.Surfaces, surface)
	}
	for _, o := range d.Options {
		kind, err := args.ParseKind(o.Type)
		if err != nil {
			return b.fail(path, fmt.Errorf("option %q: %w", o.Name, err))
		}
		def.Options = append(def.Options, args.Spec{
			Name:        o.Name,
			Description: o.Description,
			Kind:        kind,
			Required:    o.Required,
		})
	}
	for _, sd := range d.Subcommands {
		if sub := b.build(sd, path); sub != nil {
			def.Subcommands = append(def.Subcommands, sub)
		}
	}

	if hasBody {
		def.Body = body
	} else if len(def.Subcommands) == 0 {
		return b.fail(path, ErrMissingBody)
	}

	if err := def.Validate(); err != nil {
		return b.fail(path, err)
	}
	return def
}

// Load parses data, builds the definitions and registers them. Skipped
// declarations and naming conflicts are logged; only a malformed document
// is an error.
func Load(reg *command.Registry, data []byte, bodies Bodies, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := Parse(data)
	if err != nil {
		return err
	}
	defs, diags := Build(f, bodies)
	for _, d := range diags {
		logger.Warn("Skipping command declaration", zap.String("path", d.Path), zap.Error(d.Err))
	}
	for _, def := range defs {
		// Conflicts are logged by the registry and never fatal.
		_ = reg.Register(def)
	}
	logger.Info("Commands registered", zap.Int("commands", len(reg.Commands())), zap.Int("diagnostics", len(diags)))
	return nil
}
