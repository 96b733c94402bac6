// Package commands implements the built-in command bodies and declares them
// in an embedded commands.yaml.
package commands

import (
	"context"
	_ "embed"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/declare"
	"github.com/keshon/pipebot/internal/guild"
)

//go:embed commands.yaml
var declarations []byte

// Declarations returns the embedded declarations document.
func Declarations() []byte {
	return declarations
}

// Settings is the guild configuration store the settings and alias commands
// write to.
type Settings interface {
	GuildConfig(ctx context.Context, guildID string) (guild.Config, error)
	UpdateGuildConfig(ctx context.Context, guildID string, fn func(*guild.Config) error) (guild.Config, error)
	SetAlias(ctx context.Context, guildID, name, expansion string) error
	DeleteAlias(ctx context.Context, guildID, name string) (bool, error)
}

// Counter reads persisted piping statistics.
type Counter interface {
	PipedCount(ctx context.Context, guildID string) (int64, error)
}

type Deps struct {
	Settings Settings
	// Stats is optional; without it the stats command reports nothing.
	Stats Counter
	// Latency reports the transport's round trip, when it has one.
	Latency func() time.Duration
}

// Bodies binds every built-in declaration path to its implementation.
func Bodies(d Deps) declare.Bodies {
	admin := requireAdmin()
	return declare.Bodies{
		"help":    command.BodyFunc(help),
		"ping":    command.BodyFunc(d.ping),
		"stats":   command.BodyFunc(d.stats),
		"echo":    transform(func(s string) string { return s }),
		"upper":   transform(strings.ToUpper),
		"lower":   transform(strings.ToLower),
		"reverse": transform(reverse),
		"count":   command.BodyFunc(count),

		"alias.set":    command.BodyFunc(d.aliasSet),
		"alias.remove": command.BodyFunc(d.aliasRemove),
		"alias.list":   command.BodyFunc(d.aliasList),

		"settings.show":              command.BodyFunc(d.settingsShow),
		"settings.prefix":            admin(command.BodyFunc(d.settingsPrefix)),
		"settings.piping":            admin(command.BodyFunc(d.settingsPiping)),
		"settings.max-pipes":         admin(command.BodyFunc(d.settingsMaxPipes)),
		"settings.blacklist.command": admin(command.BodyFunc(d.blacklistCommand)),
		"settings.blacklist.channel": admin(command.BodyFunc(d.blacklistChannel)),
		"settings.blacklist.tag":     admin(command.BodyFunc(d.blacklistTag)),
		"settings.blacklist.surface": admin(command.BodyFunc(d.blacklistSurface)),
	}
}

// Load registers the built-in commands. doc replaces the embedded
// declarations when it is not empty.
func Load(reg *command.Registry, d Deps, doc []byte, logger *zap.Logger) error {
	if len(doc) == 0 {
		doc = declarations
	}
	return declare.Load(reg, doc, Bodies(d), logger)
}

// requireAdmin rejects authors who may not manage the guild.
func requireAdmin() command.Middleware {
	return func(next command.Body) command.Body {
		return command.BodyFunc(func(ctx context.Context, in *command.Input) (*command.Response, error) {
			if r := guildOnly(in); r != nil {
				return r, nil
			}
			if !in.Invoker.Admin {
				return command.Fail(in.Command.Name, "You need the Manage Server permission to change settings."), nil
			}
			return next.Execute(ctx, in)
		})
	}
}

// guildOnly returns an error response for commands run outside a guild.
func guildOnly(in *command.Input) *command.Response {
	if in.Invoker.GuildID == "" {
		return command.Fail(in.Command.Name, "This command only works in a server.")
	}
	return nil
}

// rest returns the text after the first token of a message step. For
// interactions it returns the named option, which already holds it.
func rest(in *command.Input, option string) string {
	if in.Invoker.Surface == command.SurfaceInteraction {
		return strings.TrimSpace(argString(in, option))
	}
	text := strings.TrimSpace(in.Text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}
