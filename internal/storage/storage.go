// Package storage keeps per-guild records (settings, user aliases and
// command history) in the JSON datastore.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/pipebot/datastore"
	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/guild"
)

const commandHistoryLimit = 20

// ErrNoGuild is returned when a guild-scoped write has no guild, as in
// direct messages.
var ErrNoGuild = errors.New("storage: no guild")

type Storage struct {
	ds       *datastore.DataStore
	defaults guild.Config
	log      *zap.Logger
}

type CommandHistoryRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Surface   string    `json:"surface"`
	Command   string    `json:"command"`
	Param     string    `json:"param"`
	Datetime  time.Time `json:"datetime"`
}

type Record struct {
	Settings        guild.Config           `json:"settings"`
	CommandsHistory []CommandHistoryRecord `json:"cmd_history"`
}

// New opens a file-backed storage. defaults fill every setting a guild has
// not changed.
func New(filePath string, defaults guild.Config, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ds, err := datastore.NewWithConfig(&datastore.Config{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
		MaxMemorySize:    100 * 1024 * 1024,
		BackupCount:      3,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &Storage{ds: ds, defaults: defaults, log: logger.Named("storage")}, nil
}

// NewMemory returns a storage that is lost on exit.
func NewMemory(defaults guild.Config, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{ds: datastore.NewMemory(), defaults: defaults, log: logger.Named("storage")}
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// decodeRecord converts whatever the datastore holds under a guild key into
// a Record. Values loaded from disk are generic JSON maps.
func decodeRecord(v any) (Record, error) {
	var rec Record
	if v == nil {
		return rec, nil
	}
	if r, ok := v.(Record); ok {
		return r, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return rec, fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

func (s *Storage) record(guildID string) (Record, error) {
	v, _ := s.ds.Get(guildID)
	rec, err := decodeRecord(v)
	if err != nil {
		return rec, fmt.Errorf("guild %s: %w", guildID, err)
	}
	rec.Settings.Normalize(s.defaults)
	return rec, nil
}

// updateRecord applies fn to the guild's record under the datastore lock.
func (s *Storage) updateRecord(guildID string, fn func(*Record) error) error {
	if guildID == "" {
		return ErrNoGuild
	}
	return s.ds.Update(guildID, func(cur any, _ bool) (any, error) {
		rec, err := decodeRecord(cur)
		if err != nil {
			return nil, fmt.Errorf("guild %s: %w", guildID, err)
		}
		rec.Settings.Normalize(s.defaults)
		rec.Settings = rec.Settings.Clone()
		if err := fn(&rec); err != nil {
			return nil, err
		}
		return rec, nil
	})
}

// AppendCommandToHistory appends a command history record for a guild,
// keeping only the most recent entries.
func (s *Storage) AppendCommandToHistory(guildID string, entry CommandHistoryRecord) error {
	return s.updateRecord(guildID, func(rec *Record) error {
		rec.CommandsHistory = append(rec.CommandsHistory, entry)
		if n := len(rec.CommandsHistory); n > commandHistoryLimit {
			rec.CommandsHistory = rec.CommandsHistory[n-commandHistoryLimit:]
		}
		return nil
	})
}

func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	rec, err := s.record(guildID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rec.CommandsHistory), nil
}

// RecordCommand stores an executed command in the guild's history. Direct
// messages have no history and are skipped.
func (s *Storage) RecordCommand(_ context.Context, inv *command.Invoker, name, param string) error {
	if inv.GuildID == "" {
		return nil
	}
	return s.AppendCommandToHistory(inv.GuildID, CommandHistoryRecord{
		ChannelID: inv.ChannelID,
		UserID:    inv.AuthorID,
		Username:  inv.AuthorName,
		Surface:   inv.Surface.String(),
		Command:   name,
		Param:     param,
		Datetime:  time.Now().UTC(),
	})
}

var _ command.HistoryRecorder = (*Storage)(nil)
