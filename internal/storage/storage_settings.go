package storage

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/keshon/pipebot/internal/guild"
)

// GuildConfig returns a snapshot of the guild's settings with defaults
// filled in. Direct messages (empty guildID) get the defaults.
func (s *Storage) GuildConfig(_ context.Context, guildID string) (guild.Config, error) {
	if guildID == "" {
		cfg := s.defaults.Clone()
		cfg.Normalize(guild.Default())
		return cfg, nil
	}
	rec, err := s.record(guildID)
	if err != nil {
		return guild.Config{}, err
	}
	return rec.Settings.Clone(), nil
}

// UpdateGuildConfig applies fn to the guild's settings and stores the
// result unless fn fails. It returns the stored settings.
func (s *Storage) UpdateGuildConfig(_ context.Context, guildID string, fn func(*guild.Config) error) (guild.Config, error) {
	var out guild.Config
	err := s.updateRecord(guildID, func(rec *Record) error {
		if err := fn(&rec.Settings); err != nil {
			return err
		}
		rec.Settings.Normalize(s.defaults)
		out = rec.Settings.Clone()
		return nil
	})
	if err != nil {
		return guild.Config{}, err
	}
	s.log.Debug("Guild settings updated", zap.String("guild", guildID))
	return out, nil
}

// SetAlias stores a user-defined alias. Names are case-insensitive.
func (s *Storage) SetAlias(ctx context.Context, guildID, name, expansion string) error {
	_, err := s.UpdateGuildConfig(ctx, guildID, func(c *guild.Config) error {
		c.Aliases[strings.ToLower(name)] = strings.TrimSpace(expansion)
		return nil
	})
	return err
}

// DeleteAlias removes a user-defined alias and reports whether it existed.
func (s *Storage) DeleteAlias(ctx context.Context, guildID, name string) (bool, error) {
	var existed bool
	_, err := s.UpdateGuildConfig(ctx, guildID, func(c *guild.Config) error {
		key := strings.ToLower(name)
		_, existed = c.Aliases[key]
		delete(c.Aliases, key)
		return nil
	})
	return existed, err
}
