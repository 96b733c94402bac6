// Package discord connects the command pipeline to a Discord gateway
// session: messages and chat interactions become invokers, outcomes go back
// through a Renderer, and the registry is mirrored as guild slash commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/config"
	"github.com/keshon/pipebot/internal/pipeline"
)

// NewSession creates an unopened session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return s, nil
}

// Bot routes gateway events into an Executor.
type Bot struct {
	cfg      *config.Config
	session  *discordgo.Session
	exec     *pipeline.Executor
	registry *command.Registry
	log      *zap.Logger

	slashLimit *rate.Limiter
	categories singleflight.Group

	mu     sync.RWMutex
	ctx    context.Context
	synced map[string]bool
}

func NewBot(cfg *config.Config, s *discordgo.Session, exec *pipeline.Executor, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		cfg:        cfg,
		session:    s,
		exec:       exec,
		registry:   exec.Registry(),
		log:        logger.Named("discord"),
		slashLimit: rate.NewLimiter(rate.Limit(40), 1),
		ctx:        context.Background(),
		synced:     make(map[string]bool),
	}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	remove := []func(){
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onGuildCreate),
		b.session.AddHandler(b.onMessageCreate),
		b.session.AddHandler(b.onInteractionCreate),
	}
	defer func() {
		for _, fn := range remove {
			fn()
		}
	}()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	b.log.Info("Gateway connected")

	<-ctx.Done()
	b.log.Info("Shutdown signal received, closing gateway")
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (b *Bot) context() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("Bot is ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	for _, g := range r.Guilds {
		b.joinGuild(s, g.ID, g.Name)
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.joinGuild(s, g.ID, g.Name)
}

// joinGuild leaves blacklisted guilds and syncs slash commands once per
// guild otherwise.
func (b *Bot) joinGuild(s *discordgo.Session, guildID, name string) {
	log := b.log.With(zap.String("guild", guildID), zap.String("name", name))
	if b.cfg.IsGuildBlacklisted(guildID) {
		log.Info("Leaving blacklisted guild")
		if err := s.GuildLeave(guildID); err != nil {
			log.Error("Failed to leave guild", zap.Error(err))
		}
		return
	}
	if !b.cfg.InitSlashCommands {
		return
	}

	b.mu.Lock()
	done := b.synced[guildID]
	b.synced[guildID] = true
	b.mu.Unlock()
	if done {
		return
	}

	go func() {
		if err := b.syncCommands(b.context(), guildID); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Failed to sync slash commands", zap.Error(err))
			b.mu.Lock()
			delete(b.synced, guildID)
			b.mu.Unlock()
		}
	}()
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	inv := messageInvoker(m, selfID)
	if inv.Self {
		return
	}
	if m.GuildID != "" {
		if perms, err := s.State.MessagePermissions(m.Message); err == nil {
			inv.Admin = canManage(perms)
		}
		inv.CategoryID = b.category(m.ChannelID)
	}
	b.exec.Handle(b.context(), inv)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	inv, err := interactionInvoker(i)
	if err != nil {
		if !errors.Is(err, errNotChatCommand) {
			b.log.Warn("Ignoring malformed interaction", zap.String("interaction", i.ID), zap.Error(err))
		}
		return
	}
	if inv.GuildID != "" {
		inv.CategoryID = b.category(inv.ChannelID)
	}
	b.exec.Handle(b.context(), inv)
}

// category returns the parent category of a channel, from state when cached
// and from the API otherwise. Concurrent lookups for one channel share a
// request. Lookup failures yield "".
func (b *Bot) category(channelID string) string {
	if ch, err := b.session.State.Channel(channelID); err == nil {
		return ch.ParentID
	}
	v, err, _ := b.categories.Do(channelID, func() (any, error) {
		ch, err := b.session.Channel(channelID, discordgo.WithContext(b.context()))
		if err != nil {
			return "", err
		}
		return ch.ParentID, nil
	})
	if err != nil {
		b.log.Debug("Channel lookup failed", zap.String("channel", channelID), zap.Error(err))
		return ""
	}
	return v.(string)
}
