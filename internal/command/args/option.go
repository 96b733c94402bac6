package args

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// FromOption converts one resolved interaction option into a Value.
// Subcommand and subcommand-group options are structural, not values, and
// are rejected here; callers walk them separately.
func FromOption(opt *discordgo.ApplicationCommandInteractionDataOption) (Value, error) {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionString:
		return String{Key: opt.Name, V: opt.StringValue()}, nil
	case discordgo.ApplicationCommandOptionInteger:
		return Integer{Key: opt.Name, V: opt.IntValue()}, nil
	case discordgo.ApplicationCommandOptionNumber:
		return Number{Key: opt.Name, V: opt.FloatValue()}, nil
	case discordgo.ApplicationCommandOptionBoolean:
		return Boolean{Key: opt.Name, V: opt.BoolValue()}, nil
	case discordgo.ApplicationCommandOptionUser:
		return User{Key: opt.Name, ID: idValue(opt)}, nil
	case discordgo.ApplicationCommandOptionChannel:
		return Channel{Key: opt.Name, ID: idValue(opt)}, nil
	case discordgo.ApplicationCommandOptionRole:
		return Role{Key: opt.Name, ID: idValue(opt)}, nil
	case discordgo.ApplicationCommandOptionMentionable:
		return Mentionable{Key: opt.Name, ID: idValue(opt)}, nil
	case discordgo.ApplicationCommandOptionAttachment:
		return Attachment{Key: opt.Name, ID: idValue(opt)}, nil
	case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
		return nil, fmt.Errorf("option %q is a subcommand, not a value", opt.Name)
	}
	return nil, fmt.Errorf("%w: option %q has type %d", ErrUnknownKind, opt.Name, opt.Type)
}

// OptionType maps a Kind to the interaction option type used when
// registering slash commands.
func OptionType(k Kind) (discordgo.ApplicationCommandOptionType, error) {
	switch k {
	case KindString:
		return discordgo.ApplicationCommandOptionString, nil
	case KindInteger:
		return discordgo.ApplicationCommandOptionInteger, nil
	case KindNumber:
		return discordgo.ApplicationCommandOptionNumber, nil
	case KindBoolean:
		return discordgo.ApplicationCommandOptionBoolean, nil
	case KindUser:
		return discordgo.ApplicationCommandOptionUser, nil
	case KindChannel:
		return discordgo.ApplicationCommandOptionChannel, nil
	case KindRole:
		return discordgo.ApplicationCommandOptionRole, nil
	case KindMentionable:
		return discordgo.ApplicationCommandOptionMentionable, nil
	case KindAttachment:
		return discordgo.ApplicationCommandOptionAttachment, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
}

func idValue(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	if s, ok := opt.Value.(string); ok {
		return s
	}
	return fmt.Sprint(opt.Value)
}
