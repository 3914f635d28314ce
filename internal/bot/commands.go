package bot

import (
	"context"
	"strings"
	"time"

	"remindme/internal/models"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const (
	helpCommand    = "!help"
	commandTimeout = 30 * time.Second
)

const helpMessage = "I can remind you about something in the future. " +
	"To set a reminder, use the `!remindme` command followed by a date and time. " +
	"For example, `!remindme 2021-01-01-12-00` or `!remindme 1d` " +
	"You can also add a message to the reminder, like this: `!remindme 2021-01-01-12-00 don't forget to call mom`"

// CommandHandler consumes reminder commands. HandleCommand reports whether
// the message was one.
type CommandHandler interface {
	HandleCommand(ctx context.Context, msg models.IncomingMessage) bool
}

type Handler struct {
	reminders CommandHandler
	bot       *Bot
	logger    *logrus.Logger
}

func NewHandler(reminders CommandHandler, bot *Bot, logger *logrus.Logger) *Handler {
	return &Handler{
		reminders: reminders,
		bot:       bot,
		logger:    logger,
	}
}

// OnMessageCreate is registered with the discordgo session. discordgo runs
// each event in its own goroutine, so commands are handled concurrently.
func (h *Handler) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	h.ProcessMessage(ctx, models.IncomingMessage{
		ID:          m.ID,
		AuthorID:    m.Author.ID,
		AuthorIsBot: m.Author.Bot,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		Content:     m.Content,
	})
}

func (h *Handler) ProcessMessage(ctx context.Context, msg models.IncomingMessage) {
	if strings.TrimSpace(msg.Content) == helpCommand {
		if err := h.bot.Send(ctx, msg.ChannelID, helpMessage); err != nil {
			h.logger.WithError(err).Error("Failed to send help message")
		}
		return
	}

	if msg.AuthorIsBot {
		return
	}

	if h.reminders.HandleCommand(ctx, msg) {
		h.logger.WithFields(logrus.Fields{
			"user_id":    msg.AuthorID,
			"channel_id": msg.ChannelID,
		}).Debug("Processed reminder command")
	}
}
