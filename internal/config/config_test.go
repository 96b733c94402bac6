package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "datastore.json", cfg.StoragePath)
	assert.Equal(t, "stats.db", cfg.StatsPath)
	assert.Equal(t, "p/", cfg.DefaultPrefix)
	assert.Equal(t, 5, cfg.DefaultMaxPipedCommands)
	assert.True(t, cfg.InitSlashCommands)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.GuildBlacklist)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "secret")
	t.Setenv("DEFAULT_PREFIX", "!")
	t.Setenv("DEFAULT_MAX_PIPED_COMMANDS", "3")
	t.Setenv("DISCORD_GUILD_BLACKLIST", "g1, ,g2")
	t.Setenv("INIT_SLASH_COMMANDS", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.NoError(t, cfg.RequireToken())
	assert.Equal(t, []string{"g1", "g2"}, cfg.GuildBlacklist)
	assert.True(t, cfg.IsGuildBlacklisted("g2"))
	assert.False(t, cfg.IsGuildBlacklisted("g3"))
	assert.False(t, cfg.InitSlashCommands)

	g := cfg.GuildDefaults()
	assert.Equal(t, "!", g.Prefix)
	assert.Equal(t, 3, g.MaxPipedCommands)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STATS_PATH=/tmp/custom.db\n"), 0o644))
	t.Setenv("STATS_PATH", "")
	os.Unsetenv("STATS_PATH")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.StatsPath)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DEFAULT_PREFIX", "p /")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("DEFAULT_PREFIX", "p/")
	t.Setenv("DEFAULT_MAX_PIPED_COMMANDS", "0")
	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("DEFAULT_MAX_PIPED_COMMANDS", "lots")
	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestRequireToken(t *testing.T) {
	assert.Error(t, (&Config{}).RequireToken())
}
