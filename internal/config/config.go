// Package config reads process configuration from the environment, with an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keshon/pipebot/internal/guild"
)

type Config struct {
	DiscordToken            string   `env:"DISCORD_TOKEN"`
	StoragePath             string   `env:"STORAGE_PATH" envDefault:"datastore.json"`
	StatsPath               string   `env:"STATS_PATH" envDefault:"stats.db"`
	CommandsFile            string   `env:"COMMANDS_FILE"`
	DefaultPrefix           string   `env:"DEFAULT_PREFIX" envDefault:"p/"`
	DefaultMaxPipedCommands int      `env:"DEFAULT_MAX_PIPED_COMMANDS" envDefault:"5"`
	GuildBlacklist          []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	InitSlashCommands       bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	LogLevel                string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile                 string   `env:"LOG_FILE"`
}

// Load reads the given .env files (".env" when none are named) and then the
// environment. Missing .env files are not an error; variables already set
// in the environment win.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.GuildBlacklist = compact(cfg.GuildBlacklist)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every entry point needs. The Discord token is
// checked separately by RequireToken.
func (c *Config) Validate() error {
	if c.DefaultPrefix == "" || strings.ContainsAny(c.DefaultPrefix, " \t\n|") {
		return fmt.Errorf("DEFAULT_PREFIX %q must be non-empty and contain no spaces or pipes", c.DefaultPrefix)
	}
	if c.DefaultMaxPipedCommands < 1 {
		return fmt.Errorf("DEFAULT_MAX_PIPED_COMMANDS must be at least 1, got %d", c.DefaultMaxPipedCommands)
	}
	return nil
}

func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return errors.New("DISCORD_TOKEN is not set")
	}
	return nil
}

// GuildDefaults returns the settings of a guild that changed nothing.
func (c *Config) GuildDefaults() guild.Config {
	g := guild.Default()
	g.Prefix = c.DefaultPrefix
	g.MaxPipedCommands = c.DefaultMaxPipedCommands
	return g
}

// IsGuildBlacklisted reports whether the bot should leave guildID.
func (c *Config) IsGuildBlacklisted(guildID string) bool {
	for _, id := range c.GuildBlacklist {
		if id == guildID {
			return true
		}
	}
	return false
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
