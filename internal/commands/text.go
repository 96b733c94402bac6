package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
)

// transform builds a text command that applies fn to its own text or, when
// it has none, to the piped input.
func transform(fn func(string) string) command.Body {
	return command.BodyFunc(func(_ context.Context, in *command.Input) (*command.Response, error) {
		text := input(in)
		if text == "" {
			return command.Fail(in.Command.Name, "`%s%s` needs some text, either typed or piped in.", in.Prefix, in.Command.Name), nil
		}
		return command.Reply(in.Command.Name, fn(text)), nil
	})
}

// input is the text a text command works on.
func input(in *command.Input) string {
	if in.Invoker.Surface == command.SurfaceInteraction {
		if s := argString(in, "text"); s != "" {
			return s
		}
		return in.Piped()
	}
	return in.TextOrPiped()
}

func argString(in *command.Input, name string) string {
	return args.StringOf(in.Args, name)
}

func reverse(s string) string {
	r := []rune(s)
	slices.Reverse(r)
	return string(r)
}

// count reports words and characters. Piped into another command it emits
// only the word count so the next step gets a bare number.
func count(_ context.Context, in *command.Input) (*command.Response, error) {
	text := input(in)
	words := len(strings.Fields(text))
	if in.Meta.WillBePiped {
		return command.Reply(in.Command.Name, fmt.Sprint(words)), nil
	}
	chars := utf8.RuneCountInString(text)
	return command.Reply(in.Command.Name, fmt.Sprintf("%d %s, %d %s", words, plural(words, "word"), chars, plural(chars, "character"))), nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
