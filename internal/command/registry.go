package command

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// EntryType is the priority class a name was registered under. Higher values
// win naming collisions.
type EntryType int

const (
	SubcommandRootAlias EntryType = iota + 1
	CommandAlias
	PrimaryName
)

func (t EntryType) String() string {
	switch t {
	case SubcommandRootAlias:
		return "subcommand-root-alias"
	case CommandAlias:
		return "alias"
	case PrimaryName:
		return "name"
	}
	return "unknown"
}

// Entry is one resolvable name in the registry.
type Entry struct {
	Definition *Definition
	Type       EntryType
	Name       string
	// Parents are the definitions enclosing a subcommand reached by a root
	// alias, outermost first. Empty for top-level commands.
	Parents []*Definition
}

// ConflictError reports a name that could not be claimed because an entry of
// equal or higher priority already holds it.
type ConflictError struct {
	Name     string
	Existing Entry
	Rejected Entry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("name %q already registered as %s of %q; rejected %s of %q",
		e.Name, e.Existing.Type, e.Existing.Definition.Name, e.Rejected.Type, e.Rejected.Definition.Name)
}

// Registry maps every invocable name to its definition. It is filled once at
// startup and only read afterwards; reads are safe from many goroutines.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	commands []*Definition
	logger   *zap.Logger
}

// NewRegistry returns an empty registry. A nil logger discards diagnostics.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Register adds def under its name, its aliases, and the root aliases of
// every nested subcommand. Names that lose a collision are skipped and
// reported in the returned error; the rest of def is still registered.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		r.logger.Warn("Skipping command definition", zap.String("command", def.Name), zap.Error(err))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	primaryOK := true
	if err := r.insert(def.Name, def, PrimaryName, nil); err != nil {
		primaryOK = false
		errs = append(errs, err)
	}
	for _, alias := range def.Aliases {
		if err := r.insert(alias, def, CommandAlias, nil); err != nil {
			errs = append(errs, err)
		}
	}

	type frame struct {
		def     *Definition
		parents []*Definition
	}
	push := func(stack []frame, parent frame) []frame {
		parents := append(slices.Clone(parent.parents), parent.def)
		for i := len(parent.def.Subcommands) - 1; i >= 0; i-- {
			stack = append(stack, frame{def: parent.def.Subcommands[i], parents: parents})
		}
		return stack
	}
	stack := push(nil, frame{def: def})
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, alias := range cur.def.RootAliases {
			if err := r.insert(alias, cur.def, SubcommandRootAlias, cur.parents); err != nil {
				errs = append(errs, err)
			}
		}
		stack = push(stack, cur)
	}

	if primaryOK {
		r.commands = append(r.commands, def)
	}
	return errors.Join(errs...)
}

// insert must be called with r.mu held.
func (r *Registry) insert(name string, def *Definition, typ EntryType, parents []*Definition) error {
	key := normalize(name)
	if key == "" {
		return nil
	}
	entry := Entry{Definition: def, Type: typ, Name: key, Parents: parents}
	existing, ok := r.entries[key]
	if ok && existing.Type >= typ {
		err := &ConflictError{Name: key, Existing: existing, Rejected: entry}
		r.logger.Warn("Command name conflict", zap.String("name", key),
			zap.Stringer("kept", existing.Type), zap.String("kept_command", existing.Definition.Name),
			zap.Stringer("rejected", typ), zap.String("rejected_command", def.Name))
		return err
	}
	if ok {
		r.logger.Debug("Command name overridden by higher priority entry", zap.String("name", key),
			zap.Stringer("old", existing.Type), zap.Stringer("new", typ))
	}
	r.entries[key] = entry
	return nil
}

// Get returns the definition registered under name, or nil.
func (r *Registry) Get(name string) *Definition {
	e, ok := r.Entry(name)
	if !ok {
		return nil
	}
	return e.Definition
}

// Entry returns the full registry entry for name.
func (r *Registry) Entry(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(name)]
	return e, ok
}

// EntryType returns the priority class name was resolved through.
func (r *Registry) EntryType(name string) (EntryType, bool) {
	e, ok := r.Entry(name)
	return e.Type, ok
}

// Commands returns the top-level definitions in registration order.
func (r *Registry) Commands() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, len(r.commands))
	copy(out, r.commands)
	return out
}

// WithTag returns every definition, at any nesting depth, that carries tag.
// Each definition appears once, in depth-first order.
func (r *Registry) WithTag(tag string) []*Definition {
	roots := r.Commands()

	seen := make(map[*Definition]struct{})
	var out []*Definition
	stack := make([]*Definition, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		def := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[def]; ok {
			continue
		}
		seen[def] = struct{}{}
		if def.HasTag(tag) {
			out = append(out, def)
		}
		for i := len(def.Subcommands) - 1; i >= 0; i-- {
			stack = append(stack, def.Subcommands[i])
		}
	}
	return out
}
