// Package guild holds the per-guild settings snapshot the pipeline reads at
// the start of every run.
package guild

import (
	"slices"
	"strings"

	"github.com/keshon/pipebot/internal/command"
)

const (
	DefaultPrefix           = "p/"
	DefaultMaxPipedCommands = 5
)

// Config is one guild's command settings. Values are copied out of storage
// and never written back by the pipeline.
type Config struct {
	Prefix               string            `json:"prefix"`
	MaxPipedCommands     int               `json:"max_piped_commands"`
	DisableCommandPiping bool              `json:"disable_command_piping"`
	DisableAllCommands   bool              `json:"disable_all_commands"`
	BlacklistedCommands  []string          `json:"blacklisted_commands"`
	BlacklistedChannels  []string          `json:"blacklisted_channels"`
	BlacklistedTags      []string          `json:"blacklisted_tags"`
	DisabledSurfaces     []string          `json:"disabled_input_surfaces"`
	Aliases              map[string]string `json:"aliases"`
}

// Default returns the settings of a guild that never changed anything.
func Default() Config {
	return Config{
		Prefix:           DefaultPrefix,
		MaxPipedCommands: DefaultMaxPipedCommands,
		Aliases:          map[string]string{},
	}
}

// Normalize fills zero values with defaults taken from def.
func (c *Config) Normalize(def Config) {
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.MaxPipedCommands <= 0 {
		c.MaxPipedCommands = def.MaxPipedCommands
	}
	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
}

// Clone returns a deep copy so callers may keep it as an immutable snapshot.
func (c Config) Clone() Config {
	out := c
	out.BlacklistedCommands = slices.Clone(c.BlacklistedCommands)
	out.BlacklistedChannels = slices.Clone(c.BlacklistedChannels)
	out.BlacklistedTags = slices.Clone(c.BlacklistedTags)
	out.DisabledSurfaces = slices.Clone(c.DisabledSurfaces)
	out.Aliases = make(map[string]string, len(c.Aliases))
	for k, v := range c.Aliases {
		out.Aliases[k] = v
	}
	return out
}

func (c Config) IsCommandBlacklisted(name string) bool {
	return containsFold(c.BlacklistedCommands, name)
}

func (c Config) IsChannelBlacklisted(ids ...string) bool {
	for _, id := range ids {
		if id != "" && slices.Contains(c.BlacklistedChannels, id) {
			return true
		}
	}
	return false
}

// BlacklistedTag returns the first of tags that is blacklisted.
func (c Config) BlacklistedTag(tags []string) (string, bool) {
	for _, t := range tags {
		if containsFold(c.BlacklistedTags, t) {
			return t, true
		}
	}
	return "", false
}

func (c Config) IsSurfaceDisabled(s command.Surface) bool {
	return containsFold(c.DisabledSurfaces, s.String())
}

// Alias returns the stored expansion of a user-defined alias.
func (c Config) Alias(name string) (string, bool) {
	v, ok := c.Aliases[strings.ToLower(name)]
	return v, ok
}

// Toggle adds value to list when absent and removes it when present. It
// reports whether value is in the list afterwards.
func Toggle(list []string, value string) ([]string, bool) {
	for i, v := range list {
		if strings.EqualFold(v, value) {
			return slices.Delete(list, i, i+1), false
		}
	}
	return append(list, value), true
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}
