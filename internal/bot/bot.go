package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const messageLinkFormat = "https://discord.com/channels/%s/%s/%s"

// Session is the part of *discordgo.Session the bot talks to.
type Session interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot resolves Discord identities and sends messages on behalf of the
// reminder service. Outgoing messages share one rate limiter.
type Bot struct {
	session Session
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewBot wraps session. A nil limiter leaves sends unthrottled.
func NewBot(session Session, limiter *rate.Limiter, logger *logrus.Logger) *Bot {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Bot{
		session: session,
		limiter: limiter,
		logger:  logger,
	}
}

// ResolveUser returns a mention for userID.
func (b *Bot) ResolveUser(ctx context.Context, userID string) (string, error) {
	user, err := b.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", errors.Wrapf(err, "failed to get user %s", userID)
	}
	return user.Mention(), nil
}

// ResolveMessageLink checks the message still exists and returns a jump
// link to it. Messages outside a guild link through @me.
func (b *Bot) ResolveMessageLink(ctx context.Context, channelID, messageID string) (string, error) {
	msg, err := b.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return "", errors.Wrapf(err, "failed to get message %s", messageID)
	}

	guildID := msg.GuildID
	if guildID == "" {
		channel, err := b.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return "", errors.Wrapf(err, "failed to get channel %s", channelID)
		}
		guildID = channel.GuildID
	}
	if guildID == "" {
		guildID = "@me"
	}

	return fmt.Sprintf(messageLinkFormat, guildID, channelID, messageID), nil
}

// Send posts content to channelID, waiting for the rate limiter first.
func (b *Bot) Send(ctx context.Context, channelID, content string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	if _, err := b.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrapf(err, "failed to send message to channel %s", channelID)
	}
	return nil
}
