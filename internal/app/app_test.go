package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/guild"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func message(content string) *command.Invoker {
	return &command.Invoker{
		Surface:   command.SurfaceMessage,
		GuildID:   "g1",
		ChannelID: "c1",
		AuthorID:  "u1",
		Content:   content,
	}
}

func TestNew_InMemory(t *testing.T) {
	a, err := New(context.Background(), Options{Defaults: guild.Default()}, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Stats)
	out := a.Executor(nil).Run(context.Background(), message("p/echo hi | p/upper"))
	assert.Equal(t, "HI", out.Message())

	out = a.Executor(nil).Run(context.Background(), message("p/stats"))
	assert.Equal(t, "Statistics are not being collected.", out.Message())
}

func TestNew_FilesAndStats(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		StoragePath: filepath.Join(dir, "store.json"),
		StatsPath:   filepath.Join(dir, "stats.db"),
		Defaults:    guild.Default(),
	}
	ctx := context.Background()

	a, err := New(ctx, opts, nil)
	require.NoError(t, err)
	exec := a.Executor(nil)
	exec.Run(ctx, message("p/echo a | p/upper | p/lower"))
	require.NoError(t, a.Stats.Flush(ctx))

	history, err := a.Storage.FetchCommandHistory("g1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
	require.NoError(t, a.Close())

	a, err = New(ctx, opts, nil)
	require.NoError(t, err)
	defer a.Close()
	out := a.Executor(nil).Run(ctx, message("p/stats"))
	assert.Equal(t, "This server has piped 2 commands.", out.Message())
}

func TestNew_CommandsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commands:\n  - name: echo\n    aliases: [parrot]\n"), 0o644))

	a, err := New(context.Background(), Options{CommandsFile: path, Defaults: guild.Default()}, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.Registry.Commands(), 1)
	out := a.Executor(nil).Run(context.Background(), message("p/parrot hi"))
	assert.Equal(t, "hi", out.Message())
}

func TestNew_MissingCommandsFile(t *testing.T) {
	_, err := New(context.Background(), Options{CommandsFile: filepath.Join(t.TempDir(), "nope.yaml")}, nil)
	assert.Error(t, err)
}
