package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/pipeline"
)

// aliasSet stores an alias. It is terminal, so its text holds everything
// after the alias name, pipes included.
func (d Deps) aliasSet(ctx context.Context, in *command.Input) (*command.Response, error) {
	if r := guildOnly(in); r != nil {
		return r, nil
	}
	name := aliasName(in)
	expansion := rest(in, "expansion")
	if name == "" || expansion == "" {
		return command.Fail(in.Command.Name, "Usage: `%salias set <name> <command line>`, e.g. `%salias set shout %secho | %supper`.",
			in.Prefix, in.Prefix, in.Prefix, in.Prefix), nil
	}
	if strings.ContainsAny(name, "|\\") {
		return command.Fail(in.Command.Name, "Alias names can't contain `|` or `\\`."), nil
	}
	if in.Registry.Get(name) != nil {
		return command.Fail(in.Command.Name, "`%s%s` is already a command.", in.Prefix, name), nil
	}

	cfg, err := d.Settings.GuildConfig(ctx, in.Invoker.GuildID)
	if err != nil {
		return nil, err
	}
	segs := pipeline.Split(expansion, in.Prefix)
	if n := pipeline.Limit(cfg); len(segs) > n {
		return command.Fail(in.Command.Name, "That alias pipes %d commands, but this server allows %d.", len(segs), n), nil
	}
	for _, seg := range segs {
		if seg.Name == "" {
			return command.Fail(in.Command.Name, "Every piped part of an alias needs a command."), nil
		}
		if strings.EqualFold(seg.Name, name) {
			return command.Fail(in.Command.Name, "An alias can't run itself."), nil
		}
	}

	if err := d.Settings.SetAlias(ctx, in.Invoker.GuildID, name, expansion); err != nil {
		return nil, err
	}
	return command.Reply(in.Command.Name, fmt.Sprintf("Alias `%s%s` now runs `%s`.", in.Prefix, name, expansion)), nil
}

func (d Deps) aliasRemove(ctx context.Context, in *command.Input) (*command.Response, error) {
	if r := guildOnly(in); r != nil {
		return r, nil
	}
	name := aliasName(in)
	if name == "" {
		return command.Fail(in.Command.Name, "Usage: `%salias remove <name>`.", in.Prefix), nil
	}
	existed, err := d.Settings.DeleteAlias(ctx, in.Invoker.GuildID, name)
	if err != nil {
		return nil, err
	}
	if !existed {
		return command.Fail(in.Command.Name, "There is no alias `%s%s`.", in.Prefix, name), nil
	}
	return command.Reply(in.Command.Name, fmt.Sprintf("Alias `%s%s` removed.", in.Prefix, name)), nil
}

func (d Deps) aliasList(ctx context.Context, in *command.Input) (*command.Response, error) {
	if r := guildOnly(in); r != nil {
		return r, nil
	}
	cfg, err := d.Settings.GuildConfig(ctx, in.Invoker.GuildID)
	if err != nil {
		return nil, err
	}
	if len(cfg.Aliases) == 0 {
		return command.Reply(in.Command.Name, "No aliases defined."), nil
	}

	names := make([]string, 0, len(cfg.Aliases))
	for name := range cfg.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("`%s%s` → `%s`", in.Prefix, name, cfg.Aliases[name]))
	}
	return command.Reply(in.Command.Name, lines), nil
}

// aliasName is the first argument with any prefix the user typed removed.
func aliasName(in *command.Input) string {
	var name string
	if in.Invoker.Surface == command.SurfaceInteraction {
		name = argString(in, "name")
	} else if fields := strings.Fields(in.Text); len(fields) > 0 {
		name = fields[0]
	}
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), in.Prefix))
}
