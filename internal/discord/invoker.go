package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
)

var errNotChatCommand = errors.New("interaction is not a chat command")

// canManage reports whether a permission set allows changing guild settings.
func canManage(perms int64) bool {
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0
}

// messageInvoker converts a gateway message into an Invoker. Admin and
// CategoryID depend on cached state and are filled in by the caller.
func messageInvoker(m *discordgo.MessageCreate, selfID string) *command.Invoker {
	inv := &command.Invoker{
		Surface:   command.SurfaceMessage,
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Raw:       m,
	}
	if m.Author != nil {
		inv.AuthorID = m.Author.ID
		inv.AuthorName = m.Author.Username
		inv.AuthorBot = m.Author.Bot
		inv.Self = selfID != "" && m.Author.ID == selfID
	}
	return inv
}

// interactionInvoker converts a chat command interaction into an Invoker.
// Nested subcommands become the Path; the leaf's options become Options.
func interactionInvoker(i *discordgo.InteractionCreate) (*command.Invoker, error) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil, errNotChatCommand
	}
	data := i.ApplicationCommandData()
	if data.CommandType != 0 && data.CommandType != discordgo.ChatApplicationCommand {
		return nil, errNotChatCommand
	}

	path, vals, err := flattenOptions(data.Options)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", data.Name, err)
	}

	inv := &command.Invoker{
		Surface:   command.SurfaceInteraction,
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Command:   data.Name,
		Path:      path,
		Options:   vals,
		Raw:       i,
	}
	if i.Member != nil {
		inv.Admin = canManage(i.Member.Permissions)
		if i.Member.User != nil {
			setAuthor(inv, i.Member.User)
		}
	} else if i.User != nil {
		setAuthor(inv, i.User)
	}
	return inv, nil
}

func setAuthor(inv *command.Invoker, u *discordgo.User) {
	inv.AuthorID = u.ID
	inv.AuthorName = u.Username
	inv.AuthorBot = u.Bot
}

// flattenOptions walks subcommand and subcommand group options down to the
// leaf and converts the leaf's options to values.
func flattenOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) ([]string, []args.Value, error) {
	var path []string
	for len(opts) == 1 && isStructural(opts[0].Type) {
		path = append(path, opts[0].Name)
		opts = opts[0].Options
	}

	vals := make([]args.Value, 0, len(opts))
	for _, opt := range opts {
		v, err := args.FromOption(opt)
		if err != nil {
			return nil, nil, err
		}
		vals = append(vals, v)
	}
	return path, vals, nil
}

func isStructural(t discordgo.ApplicationCommandOptionType) bool {
	return t == discordgo.ApplicationCommandOptionSubCommand || t == discordgo.ApplicationCommandOptionSubCommandGroup
}
