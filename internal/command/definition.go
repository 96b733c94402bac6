package command

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/pipebot/internal/command/args"
)

// ErrInvalidDefinition marks a definition that cannot be registered.
var ErrInvalidDefinition = errors.New("invalid command definition")

// Wildcard in PipableTo admits any downstream command.
const Wildcard = "*"

// Surface is the way a command was invoked.
type Surface int

const (
	SurfaceMessage Surface = iota + 1
	SurfaceInteraction
)

func (s Surface) String() string {
	switch s {
	case SurfaceMessage:
		return "message"
	case SurfaceInteraction:
		return "interaction"
	}
	return "unknown"
}

// ParseSurface converts "message" or "interaction" into a Surface.
func ParseSurface(s string) (Surface, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "message", "text":
		return SurfaceMessage, nil
	case "interaction", "slash":
		return SurfaceInteraction, nil
	}
	return 0, fmt.Errorf("unknown input surface %q", s)
}

// Definition describes one invocable command. Definitions are built once at
// startup and must not be modified after they are registered.
type Definition struct {
	Name        string
	Description string
	Aliases     []string
	// RootAliases make a subcommand reachable at the top level without its parent.
	RootAliases []string
	Tags        []string
	// PipableTo lists the names or tags a piped successor must match.
	// Empty, or containing Wildcard, admits anything.
	PipableTo []string
	// NotPipable commands end any chain they appear in and consume the rest
	// of the line as their own input.
	NotPipable  bool
	AllowBots   bool
	Options     []args.Spec
	Subcommands []*Definition
	// Surfaces lists where the command may be invoked; empty means everywhere.
	Surfaces []Surface
	Body     Body
}

// HasTag reports whether the definition carries tag.
func (d *Definition) HasTag(tag string) bool {
	return slices.ContainsFunc(d.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

// Accepts reports whether the command may be invoked from s.
func (d *Definition) Accepts(s Surface) bool {
	return len(d.Surfaces) == 0 || slices.Contains(d.Surfaces, s)
}

// CanPipeTo reports whether next may consume this command's output.
func (d *Definition) CanPipeTo(next *Definition) bool {
	if len(d.PipableTo) == 0 || slices.Contains(d.PipableTo, Wildcard) {
		return true
	}
	if next == nil {
		return false
	}
	for _, allowed := range d.PipableTo {
		if strings.EqualFold(allowed, next.Name) || next.HasTag(allowed) {
			return true
		}
	}
	return false
}

// Subcommand returns the direct subcommand matching name by name or alias.
func (d *Definition) Subcommand(name string) *Definition {
	name = normalize(name)
	if name == "" {
		return nil
	}
	for _, sub := range d.Subcommands {
		if normalize(sub.Name) == name {
			return sub
		}
		for _, a := range sub.Aliases {
			if normalize(a) == name {
				return sub
			}
		}
	}
	return nil
}

// Validate checks the definition tree for problems that would make it
// impossible to dispatch.
func (d *Definition) Validate() error {
	stack := []*Definition{d}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if normalize(cur.Name) == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidDefinition)
		}
		if strings.ContainsAny(cur.Name, " \t\n|") {
			return fmt.Errorf("%w: name %q contains whitespace or a pipe", ErrInvalidDefinition, cur.Name)
		}
		if cur.Body == nil && len(cur.Subcommands) == 0 {
			return fmt.Errorf("%w: %q has neither a body nor subcommands", ErrInvalidDefinition, cur.Name)
		}
		for _, sub := range cur.Subcommands {
			if sub == nil {
				return fmt.Errorf("%w: %q has a nil subcommand", ErrInvalidDefinition, cur.Name)
			}
			stack = append(stack, sub)
		}
	}
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
