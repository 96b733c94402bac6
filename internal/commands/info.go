package commands

import (
	"context"
	"fmt"

	"github.com/keshon/pipebot/internal/command"
)

func (d Deps) ping(_ context.Context, in *command.Input) (*command.Response, error) {
	if d.Latency == nil {
		return command.Reply(in.Command.Name, "Pong!"), nil
	}
	return command.Reply(in.Command.Name, fmt.Sprintf("Pong! Response time: `%dms`", d.Latency().Milliseconds())), nil
}

func (d Deps) stats(ctx context.Context, in *command.Input) (*command.Response, error) {
	if r := guildOnly(in); r != nil {
		return r, nil
	}
	if d.Stats == nil {
		return command.Reply(in.Command.Name, "Statistics are not being collected."), nil
	}
	n, err := d.Stats.PipedCount(ctx, in.Invoker.GuildID)
	if err != nil {
		return nil, err
	}
	if in.Meta.WillBePiped {
		return command.Reply(in.Command.Name, fmt.Sprint(n)), nil
	}
	return command.Reply(in.Command.Name, fmt.Sprintf("This server has piped %d %s.", n, plural(int(n), "command"))), nil
}
