package discord

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/pipeline"
	"github.com/keshon/pipebot/pkg/retrylimit"
)

const (
	ErrorColor = 0xe74c3c

	maxContent     = 2000
	maxDescription = 4096
)

// reply is the transport-ready shape of a pipeline outcome.
type reply struct {
	Content   string
	Embeds    []*discordgo.MessageEmbed
	Ephemeral bool
}

// emptyReply acknowledges a run that produced no text.
const emptyReply = "Done."

// buildReply maps an outcome to what Discord shows: notices as plain
// ephemeral text, error responses as a red embed, anything else as content.
func buildReply(out pipeline.Outcome) reply {
	switch {
	case out.Notice != "":
		return reply{Content: truncate(out.Notice, maxContent), Ephemeral: true}
	case out.Response.Failed():
		return reply{Embeds: []*discordgo.MessageEmbed{{
			Description: truncate(out.Response.Error, maxDescription),
			Color:       ErrorColor,
		}}}
	case out.Response.Text() == "":
		// Discord refuses empty messages, and an interaction must be answered.
		return reply{Content: emptyReply, Ephemeral: true}
	default:
		return reply{Content: truncate(out.Response.Text(), maxContent)}
	}
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// restStatus extracts the HTTP status of a failed discordgo REST call.
func restStatus(err error) (int, bool) {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return rerr.Response.StatusCode, true
	}
	return 0, false
}

// Renderer delivers pipeline outcomes through a discordgo session. Sends are
// paced by an adaptive limiter and retried on transient failures.
type Renderer struct {
	session *discordgo.Session
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.RetryConfig
	log     *zap.Logger
}

var _ pipeline.Renderer = (*Renderer)(nil)

func NewRenderer(s *discordgo.Session, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.Status = restStatus
	cfg.Logger = logger
	return &Renderer{
		session: s,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		retry:   cfg,
		log:     logger,
	}
}

// Render replies to the invoking message, or responds to the interaction.
func (r *Renderer) Render(ctx context.Context, inv *command.Invoker, out pipeline.Outcome) error {
	rep := buildReply(out)
	switch inv.Surface {
	case command.SurfaceMessage:
		return r.send(ctx, func() error {
			_, err := r.session.ChannelMessageSendComplex(inv.ChannelID, &discordgo.MessageSend{
				Content: rep.Content,
				Embeds:  rep.Embeds,
				Reference: &discordgo.MessageReference{
					MessageID: inv.ID,
					ChannelID: inv.ChannelID,
					GuildID:   inv.GuildID,
				},
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			}, discordgo.WithContext(ctx))
			return err
		})
	case command.SurfaceInteraction:
		ic, ok := inv.Raw.(*discordgo.InteractionCreate)
		if !ok || ic.Interaction == nil {
			return fmt.Errorf("interaction invoker %s carries no interaction", inv.ID)
		}
		data := &discordgo.InteractionResponseData{
			Content:         rep.Content,
			Embeds:          rep.Embeds,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}
		if rep.Ephemeral {
			data.Flags = discordgo.MessageFlagsEphemeral
		}
		return r.send(ctx, func() error {
			return r.session.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: data,
			}, discordgo.WithContext(ctx))
		})
	}
	return fmt.Errorf("cannot render to surface %s", inv.Surface)
}

func (r *Renderer) send(ctx context.Context, fn func() error) error {
	return retrylimit.WithRetryConfig(ctx, fn, r.limiter, r.retry)
}
