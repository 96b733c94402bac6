package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
	"github.com/keshon/pipebot/internal/guild"
	"github.com/keshon/pipebot/internal/pipeline"
)

func (d Deps) settingsShow(ctx context.Context, in *command.Input) (*command.Response, error) {
	if r := guildOnly(in); r != nil {
		return r, nil
	}
	cfg, err := d.Settings.GuildConfig(ctx, in.Invoker.GuildID)
	if err != nil {
		return nil, err
	}
	lines := []string{
		fmt.Sprintf("Prefix: `%s`", cfg.Prefix),
		fmt.Sprintf("Piping: %s, up to %d commands", onOff(!cfg.DisableCommandPiping), pipeline.Limit(cfg)),
		fmt.Sprintf("All commands: %s", onOff(!cfg.DisableAllCommands)),
		"Blacklisted commands: " + listOrNone(cfg.BlacklistedCommands, ""),
		"Blacklisted channels: " + listOrNone(cfg.BlacklistedChannels, "#"),
		"Blacklisted tags: " + listOrNone(cfg.BlacklistedTags, ""),
		"Disabled surfaces: " + listOrNone(cfg.DisabledSurfaces, ""),
		fmt.Sprintf("Aliases: %d", len(cfg.Aliases)),
	}
	return command.Reply(in.Command.Name, lines), nil
}

func (d Deps) settingsPrefix(ctx context.Context, in *command.Input) (*command.Response, error) {
	prefix := strings.TrimSpace(argString(in, "prefix"))
	if prefix == "" || strings.ContainsAny(prefix, " \t\n|\\") {
		return command.Fail(in.Command.Name, "A prefix must be a single word without `|` or `\\`."), nil
	}
	if _, err := d.update(ctx, in, func(c *guild.Config) { c.Prefix = prefix }); err != nil {
		return nil, err
	}
	return command.Reply(in.Command.Name, fmt.Sprintf("Prefix set to `%s`.", prefix)), nil
}

func (d Deps) settingsPiping(ctx context.Context, in *command.Input) (*command.Response, error) {
	var (
		enabled bool
		toggle  = true
	)
	if v, ok := args.Lookup(in.Args, "enabled"); ok {
		b, ok := v.(args.Boolean)
		if !ok {
			parsed, valid := parseSwitch(args.Format(v))
			if !valid {
				return command.Fail(in.Command.Name, "Use `on` or `off`."), nil
			}
			b = args.Boolean{V: parsed}
		}
		enabled, toggle = b.V, false
	}
	cfg, err := d.update(ctx, in, func(c *guild.Config) {
		if toggle {
			c.DisableCommandPiping = !c.DisableCommandPiping
			return
		}
		c.DisableCommandPiping = !enabled
	})
	if err != nil {
		return nil, err
	}
	return command.Reply(in.Command.Name, fmt.Sprintf("Command piping is now %s.", onOff(!cfg.DisableCommandPiping))), nil
}

func (d Deps) settingsMaxPipes(ctx context.Context, in *command.Input) (*command.Response, error) {
	v, _ := args.Lookup(in.Args, "n")
	n, ok := v.(args.Integer)
	if !ok || n.V < 1 || n.V > pipeline.HardMaxPipedCommands {
		return command.Fail(in.Command.Name, "Pick a number from 1 to %d.", pipeline.HardMaxPipedCommands), nil
	}
	if _, err := d.update(ctx, in, func(c *guild.Config) { c.MaxPipedCommands = int(n.V) }); err != nil {
		return nil, err
	}
	return command.Reply(in.Command.Name, fmt.Sprintf("Up to %d commands may now be piped.", n.V)), nil
}

func (d Deps) blacklistCommand(ctx context.Context, in *command.Input) (*command.Response, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(argString(in, "name")), in.Prefix))
	def := in.Registry.Get(name)
	if def == nil {
		return command.Fail(in.Command.Name, "Unknown command `%s%s`.", in.Prefix, name), nil
	}
	if def.HasTag("settings") {
		return command.Fail(in.Command.Name, "`%s%s` can't be blacklisted.", in.Prefix, def.Name), nil
	}
	var added bool
	if _, err := d.update(ctx, in, func(c *guild.Config) {
		c.BlacklistedCommands, added = guild.Toggle(c.BlacklistedCommands, def.Name)
	}); err != nil {
		return nil, err
	}
	return toggled(in, fmt.Sprintf("`%s%s`", in.Prefix, def.Name), added), nil
}

func (d Deps) blacklistChannel(ctx context.Context, in *command.Input) (*command.Response, error) {
	var id string
	switch v, _ := args.Lookup(in.Args, "channel"); v := v.(type) {
	case args.Channel:
		id = v.ID
	case args.String:
		id = strings.TrimSuffix(strings.TrimPrefix(v.V, "<#"), ">")
	}
	if id == "" {
		return command.Fail(in.Command.Name, "Name a channel, e.g. `%ssettings blacklist channel #general`.", in.Prefix), nil
	}
	var added bool
	if _, err := d.update(ctx, in, func(c *guild.Config) {
		c.BlacklistedChannels, added = guild.Toggle(c.BlacklistedChannels, id)
	}); err != nil {
		return nil, err
	}
	return toggled(in, "<#"+id+">", added), nil
}

func (d Deps) blacklistTag(ctx context.Context, in *command.Input) (*command.Response, error) {
	tag := strings.ToLower(strings.TrimSpace(argString(in, "tag")))
	if tag == "" || tag == "settings" {
		return command.Fail(in.Command.Name, "Name a tag other than `settings`."), nil
	}
	var added bool
	if _, err := d.update(ctx, in, func(c *guild.Config) {
		c.BlacklistedTags, added = guild.Toggle(c.BlacklistedTags, tag)
	}); err != nil {
		return nil, err
	}
	return toggled(in, "tag `"+tag+"`", added), nil
}

func (d Deps) blacklistSurface(ctx context.Context, in *command.Input) (*command.Response, error) {
	surface, err := command.ParseSurface(argString(in, "surface"))
	if err != nil {
		return command.Fail(in.Command.Name, "Name a surface: `message` or `interaction`."), nil
	}
	if surface == in.Invoker.Surface {
		return command.Fail(in.Command.Name, "You can't disable the surface you are using."), nil
	}
	var added bool
	if _, err := d.update(ctx, in, func(c *guild.Config) {
		c.DisabledSurfaces, added = guild.Toggle(c.DisabledSurfaces, surface.String())
	}); err != nil {
		return nil, err
	}
	return toggled(in, surface.String()+" commands", added), nil
}

// update applies fn to the invoking guild's settings.
func (d Deps) update(ctx context.Context, in *command.Input, fn func(*guild.Config)) (guild.Config, error) {
	if in.Invoker.GuildID == "" {
		return guild.Config{}, fmt.Errorf("settings changed outside a guild")
	}
	return d.Settings.UpdateGuildConfig(ctx, in.Invoker.GuildID, func(c *guild.Config) error {
		fn(c)
		return nil
	})
}

func toggled(in *command.Input, what string, blacklisted bool) *command.Response {
	if blacklisted {
		return command.Reply(in.Command.Name, what+" is now disabled.")
	}
	return command.Reply(in.Command.Name, what+" is enabled again.")
}

func parseSwitch(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes", "enable", "enabled":
		return true, true
	case "off", "no", "disable", "disabled":
		return false, true
	}
	b, err := strconv.ParseBool(s)
	return b, err == nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func listOrNone(list []string, mark string) string {
	if len(list) == 0 {
		return "none"
	}
	out := make([]string, len(list))
	for i, v := range list {
		if mark == "#" {
			out[i] = "<#" + v + ">"
		} else {
			out[i] = "`" + v + "`"
		}
	}
	return strings.Join(out, ", ")
}
