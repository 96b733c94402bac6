package declare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/command/args"
)

var noop = command.BodyFunc(func(context.Context, *command.Input) (*command.Response, error) {
	return command.Reply("", "ok"), nil
})

const doc = `
commands:
  - name: Echo
    description: Repeats its input
    aliases: [say]
    tags: [text]
  - name: count
    tags: [text]
    pipable_to: [text]
    input_surfaces: [message, slash]
    options:
      - name: n
        type: integer
        required: true
  - name: alias
    not_pipable: true
    subcommands:
      - name: set
        aliases: [add]
        root_aliases: [mkalias]
      - name: list
  - name: orphan
  - name: weird
    options:
      - name: x
        type: spaceship
`

func TestBuild(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	bodies := Bodies{
		"echo":       noop,
		"count":      noop,
		"alias.set":  noop,
		"alias.list": noop,
		"weird":      noop,
		"stale":      noop,
	}
	defs, diags := Build(f, bodies)

	require.Len(t, defs, 3)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, []string{"say"}, defs[0].Aliases)

	count := defs[1]
	assert.Equal(t, []command.Surface{command.SurfaceMessage, command.SurfaceInteraction}, count.Surfaces)
	require.Len(t, count.Options, 1)
	assert.Equal(t, args.Spec{Name: "n", Kind: args.KindInteger, Required: true}, count.Options[0])

	group := defs[2]
	assert.Nil(t, group.Body)
	assert.True(t, group.NotPipable)
	require.Len(t, group.Subcommands, 2)
	assert.Equal(t, []string{"mkalias"}, group.Subcommands[0].RootAliases)

	paths := make(map[string]error)
	for _, d := range diags {
		paths[d.Path] = d.Err
	}
	assert.ErrorIs(t, paths["orphan"], ErrMissingBody)
	assert.ErrorIs(t, paths["weird"], args.ErrUnknownKind)
	assert.ErrorIs(t, paths["stale"], ErrUnusedBody)
	assert.Len(t, diags, 3)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("commands:\n  - name: x\n    pipeable: true\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Commands)
}

func TestLoad_RegistersValidDeclarations(t *testing.T) {
	reg := command.NewRegistry(nil)
	err := Load(reg, []byte(doc), Bodies{"echo": noop, "alias.set": noop}, nil)
	require.NoError(t, err)

	assert.NotNil(t, reg.Get("say"))
	assert.Equal(t, "set", reg.Get("mkalias").Name)
	assert.Nil(t, reg.Get("count"))

	typ, ok := reg.EntryType("mkalias")
	require.True(t, ok)
	assert.Equal(t, command.SubcommandRootAlias, typ)
}

func TestLoad_MalformedDocument(t *testing.T) {
	reg := command.NewRegistry(nil)
	assert.Error(t, Load(reg, []byte("commands: [oops"), nil, nil))
}
