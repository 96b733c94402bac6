package pipeline

import (
	"fmt"
	"strings"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/guild"
)

// HardMaxPipedCommands bounds a pipeline regardless of guild settings.
const HardMaxPipedCommands = 10

// Verdict is the result of an admission check. An aborting verdict with an
// empty Message is silent: the input was not meant for the bot.
type Verdict struct {
	Abort   bool
	Message string
}

var admitted = Verdict{}

func silent() Verdict { return Verdict{Abort: true} }

func reject(format string, a ...any) Verdict {
	return Verdict{Abort: true, Message: fmt.Sprintf(format, a...)}
}

// Limit is the effective segment cap for cfg.
func Limit(cfg guild.Config) int {
	if cfg.MaxPipedCommands <= 0 || cfg.MaxPipedCommands > HardMaxPipedCommands {
		return HardMaxPipedCommands
	}
	return cfg.MaxPipedCommands
}

// Admit runs the guild-level checks, in order, before anything executes.
func Admit(inv *command.Invoker, cfg guild.Config, segs []Segment, reg *command.Registry) Verdict {
	if inv.Self {
		return silent()
	}
	if inv.AuthorBot {
		if len(segs) == 0 {
			return silent()
		}
		def := reg.Get(segs[0].Name)
		if def == nil || !def.AllowBots {
			return silent()
		}
	}

	if inv.Surface == command.SurfaceMessage && !strings.HasPrefix(strings.TrimSpace(inv.Content), cfg.Prefix) {
		return silent()
	}

	if cfg.DisableAllCommands {
		return reject("Commands are disabled in this server.")
	}
	if cfg.IsChannelBlacklisted(inv.ChannelID, inv.CategoryID) {
		return reject("Commands are disabled in this channel.")
	}
	if cfg.IsSurfaceDisabled(inv.Surface) {
		return reject("Commands can't be used via %s in this server.", inv.Surface)
	}

	return checkLength(cfg, len(segs))
}

// CheckCommand applies the per-command rules to a resolved command. chain
// runs from the top-level definition down to the subcommand actually
// dispatched to; every link is checked.
func CheckCommand(chain []*command.Definition, cfg guild.Config, surface command.Surface) Verdict {
	for _, d := range chain {
		if cfg.IsCommandBlacklisted(d.Name) {
			return reject("The command `%s%s` is disabled in this server.", cfg.Prefix, d.Name)
		}
		if tag, ok := cfg.BlacklistedTag(d.Tags); ok {
			return reject("The command `%s%s` is disabled in this server (category `%s`).", cfg.Prefix, d.Name, tag)
		}
		if !d.Accepts(surface) {
			return reject("The command `%s%s` can't be used via %s.", cfg.Prefix, d.Name, surface)
		}
	}
	return admitted
}

// checkLength rejects a pipeline of n segments that the guild does not allow.
func checkLength(cfg guild.Config, n int) Verdict {
	if limit := Limit(cfg); n > limit {
		return reject("You can only pipe up to %d commands at once, but %d were given.", limit, n)
	}
	if n > 1 && cfg.DisableCommandPiping {
		return reject("Command piping is disabled in this server.")
	}
	return admitted
}
