package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/config"
)

const untagged = "other"

func help(_ context.Context, in *command.Input) (*command.Response, error) {
	name := strings.TrimPrefix(strings.TrimSpace(argString(in, "command")), in.Prefix)
	if name == "" {
		return command.Reply(in.Command.Name, helpIndex(in)), nil
	}
	def := in.Registry.Get(name)
	if def == nil {
		return command.Fail(in.Command.Name, "Unknown command `%s%s`.", in.Prefix, name), nil
	}
	return command.Reply(in.Command.Name, helpDetail(in.Prefix, def)), nil
}

// helpIndex lists top-level commands grouped by their first tag.
func helpIndex(in *command.Input) string {
	groups := make(map[string][]*command.Definition)
	for _, def := range in.Registry.Commands() {
		tag := untagged
		if len(def.Tags) > 0 {
			tag = strings.ToLower(def.Tags[0])
		}
		groups[tag] = append(groups[tag], def)
	}

	tags := make([]string, 0, len(groups))
	for tag := range groups {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		wi, wj := tagWeight(tags[i]), tagWeight(tags[j])
		if wi != wj {
			return wi < wj
		}
		return tags[i] < tags[j]
	})

	var sb strings.Builder
	for _, tag := range tags {
		fmt.Fprintf(&sb, "**%s**\n", tag)
		for _, def := range groups[tag] {
			fmt.Fprintf(&sb, "`%s%s`", in.Prefix, def.Name)
			if len(def.Aliases) > 0 {
				fmt.Fprintf(&sb, " (%s)", strings.Join(def.Aliases, ", "))
			}
			if def.Description != "" {
				sb.WriteString(" - " + def.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Chain commands with `|`, e.g. `%secho hi | %supper`. Use `%shelp <command>` for details.",
		in.Prefix, in.Prefix, in.Prefix)
	return sb.String()
}

func tagWeight(tag string) int {
	if w, ok := config.TagWeights[tag]; ok {
		return w
	}
	return 1 << 20
}

func helpDetail(prefix string, def *command.Definition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "`%s%s`", prefix, def.Name)
	if def.Description != "" {
		sb.WriteString(" - " + def.Description)
	}
	sb.WriteString("\n")

	if len(def.Aliases) > 0 {
		fmt.Fprintf(&sb, "Aliases: %s\n", strings.Join(def.Aliases, ", "))
	}
	if len(def.Tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(def.Tags, ", "))
	}
	if len(def.Options) > 0 {
		parts := make([]string, 0, len(def.Options))
		for _, o := range def.Options {
			p := fmt.Sprintf("%s (%s)", o.Name, o.Kind)
			if o.Required {
				p += " required"
			}
			parts = append(parts, p)
		}
		fmt.Fprintf(&sb, "Arguments: %s\n", strings.Join(parts, ", "))
	}
	for _, sub := range def.Subcommands {
		fmt.Fprintf(&sb, "  `%s %s`", def.Name, sub.Name)
		if len(sub.RootAliases) > 0 {
			fmt.Fprintf(&sb, " (also `%s%s`)", prefix, strings.Join(sub.RootAliases, "`, `"+prefix))
		}
		if sub.Description != "" {
			sb.WriteString(" - " + sub.Description)
		}
		sb.WriteString("\n")
	}

	switch {
	case def.NotPipable:
		sb.WriteString("Takes the rest of the line, pipes included.\n")
	case len(def.PipableTo) > 0:
		fmt.Fprintf(&sb, "Pipes into: %s\n", strings.Join(def.PipableTo, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}
