package discord

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
)

const maxSlashDescription = 100

// applicationCommands builds the slash commands for every registered
// definition that accepts interactions. Definitions Discord cannot express
// are skipped and reported.
func applicationCommands(defs []*command.Definition) ([]*discordgo.ApplicationCommand, []error) {
	var (
		out  []*discordgo.ApplicationCommand
		errs []error
	)
	for _, def := range defs {
		if !def.Accepts(command.SurfaceInteraction) {
			continue
		}
		opts, err := definitionOptions(def, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("slash command %q: %w", def.Name, err))
			continue
		}
		out = append(out, &discordgo.ApplicationCommand{
			Type:        discordgo.ChatApplicationCommand,
			Name:        strings.ToLower(def.Name),
			Description: slashDescription(def.Description, def.Name),
			Options:     opts,
		})
	}
	return out, errs
}

// definitionOptions returns subcommands when def has any, its argument
// options otherwise. Discord allows two levels below the command.
func definitionOptions(def *command.Definition, depth int) ([]*discordgo.ApplicationCommandOption, error) {
	if len(def.Subcommands) == 0 {
		return argumentOptions(def.Options)
	}
	if depth >= 2 {
		return nil, fmt.Errorf("%q nests subcommands too deeply", def.Name)
	}

	var out []*discordgo.ApplicationCommandOption
	for _, sub := range def.Subcommands {
		if !sub.Accepts(command.SurfaceInteraction) {
			continue
		}
		opts, err := definitionOptions(sub, depth+1)
		if err != nil {
			return nil, err
		}
		typ := discordgo.ApplicationCommandOptionSubCommand
		if len(sub.Subcommands) > 0 {
			if depth > 0 {
				return nil, fmt.Errorf("%q nests subcommands too deeply", sub.Name)
			}
			typ = discordgo.ApplicationCommandOptionSubCommandGroup
		}
		out = append(out, &discordgo.ApplicationCommandOption{
			Type:        typ,
			Name:        strings.ToLower(sub.Name),
			Description: slashDescription(sub.Description, sub.Name),
			Options:     opts,
		})
	}
	return out, nil
}

// argumentOptions maps declared arguments to options, required first as
// Discord demands.
func argumentOptions(specs []args.Spec) ([]*discordgo.ApplicationCommandOption, error) {
	out := make([]*discordgo.ApplicationCommandOption, 0, len(specs))
	for _, spec := range specs {
		typ, err := args.OptionType(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", spec.Name, err)
		}
		out = append(out, &discordgo.ApplicationCommandOption{
			Type:        typ,
			Name:        strings.ToLower(spec.Name),
			Description: slashDescription(spec.Description, spec.Name),
			Required:    spec.Required,
		})
	}
	slices.SortStableFunc(out, func(a, b *discordgo.ApplicationCommandOption) int {
		return cmp.Compare(requiredRank(a), requiredRank(b))
	})
	return out, nil
}

func requiredRank(o *discordgo.ApplicationCommandOption) int {
	if o.Required {
		return 0
	}
	return 1
}

func slashDescription(desc, fallback string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		desc = fallback
	}
	return truncate(desc, maxSlashDescription)
}

// syncCommands makes the guild's slash commands match the registry. Remote
// commands whose hash already matches are left alone; obsolete ones are
// deleted.
func (b *Bot) syncCommands(ctx context.Context, guildID string) error {
	appID := b.session.State.User.ID
	log := b.log.With(zap.String("guild", guildID))

	wanted, errs := applicationCommands(b.registry.Commands())
	for _, err := range errs {
		log.Warn("Skipping slash command", zap.Error(err))
	}

	existing, err := b.session.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list slash commands: %w", err)
	}
	remote := make(map[string]string, len(existing))
	for _, cmd := range existing {
		remote[cmd.Name] = hashCommand(cmd)
	}

	keep := make(map[string]bool, len(wanted))
	var changed []*discordgo.ApplicationCommand
	for _, cmd := range wanted {
		keep[cmd.Name] = true
		if remote[cmd.Name] != hashCommand(cmd) {
			changed = append(changed, cmd)
		}
	}

	for _, old := range existing {
		if keep[old.Name] {
			continue
		}
		if err := b.slashLimit.Wait(ctx); err != nil {
			return err
		}
		if err := b.session.ApplicationCommandDelete(appID, guildID, old.ID, discordgo.WithContext(ctx)); err != nil {
			log.Error("Failed to delete obsolete slash command", zap.String("command", old.Name), zap.Error(err))
			continue
		}
		log.Info("Deleted obsolete slash command", zap.String("command", old.Name))
	}

	for _, cmd := range changed {
		if err := b.slashLimit.Wait(ctx); err != nil {
			return err
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd, discordgo.WithContext(ctx)); err != nil {
			log.Error("Failed to create slash command", zap.String("command", cmd.Name), zap.Error(err))
			continue
		}
		log.Debug("Slash command created", zap.String("command", cmd.Name))
	}
	log.Info("Slash commands synced", zap.Int("wanted", len(wanted)), zap.Int("changed", len(changed)))
	return nil
}
