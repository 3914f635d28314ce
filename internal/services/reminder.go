package services

import (
	"context"
	"fmt"
	"time"

	"remindme/internal/models"
	"remindme/internal/parser"
	"remindme/internal/repository"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	invalidDateMessage  = "Invalid date format"
	createFailedMessage = "Sorry, I couldn't set that reminder. Please try again later."
	ackTimeLayout       = "2006-01-02 15:04"
)

// Transport resolves chat identities and sends messages. A failure from any
// method is final for the reminder being dispatched.
type Transport interface {
	ResolveUser(ctx context.Context, userID string) (string, error)
	ResolveMessageLink(ctx context.Context, channelID, messageID string) (string, error)
	Send(ctx context.Context, channelID, content string) error
}

// DispatchGuard hands out a single delivery attempt per reminder. Claim
// returns false if the reminder was already attempted.
type DispatchGuard interface {
	Claim(ctx context.Context, reminderID int64) (bool, error)
}

type SweepResult struct {
	Found      int `json:"found"`
	Dispatched int `json:"dispatched"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type ReminderServiceConfig struct {
	Store     repository.ReminderRepository
	Transport Transport
	Parser    *parser.Parser
	Guard     DispatchGuard
	Logger    *logrus.Logger
}

// ReminderService creates reminders from chat commands and runs the due and
// cleanup sweeps. Delivery is attempted at most once and never retried; a
// due reminder is deleted by SweepExpired whether or not delivery worked.
type ReminderService struct {
	store     repository.ReminderRepository
	transport Transport
	parser    *parser.Parser
	guard     DispatchGuard
	logger    *logrus.Logger
}

func NewReminderService(config *ReminderServiceConfig) *ReminderService {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Parser == nil {
		config.Parser = parser.New(nil)
	}

	return &ReminderService{
		store:     config.Store,
		transport: config.Transport,
		parser:    config.Parser,
		guard:     config.Guard,
		logger:    config.Logger,
	}
}

// HandleCommand processes one inbound message. It reports false when the
// message is not a reminder command, in which case nothing was sent.
// A panic in the store or transport is logged and never escapes.
func (s *ReminderService) HandleCommand(ctx context.Context, msg models.IncomingMessage) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id":    msg.AuthorID,
				"channel_id": msg.ChannelID,
				"message_id": msg.ID,
			}).Errorf("Panic while handling reminder command: %v", r)
			handled = true
		}
	}()

	cmd, err := s.parser.Parse(msg.Content)
	if errors.Is(err, parser.ErrNotCommand) {
		return false
	}

	log := s.logger.WithFields(logrus.Fields{
		"user_id":    msg.AuthorID,
		"channel_id": msg.ChannelID,
		"message_id": msg.ID,
	})

	if err != nil {
		log.WithError(err).Info("Rejected reminder command")
		s.reply(ctx, msg.ChannelID, invalidDateMessage)
		return true
	}

	reminder, err := s.store.Create(ctx, models.Reminder{
		UserID:      msg.AuthorID,
		ChannelID:   msg.ChannelID,
		MessageID:   msg.ID,
		Message:     cmd.Text,
		TriggerTime: cmd.TriggerTime,
	})
	if err != nil {
		log.WithError(err).Error("Failed to set reminder")
		s.reply(ctx, msg.ChannelID, createFailedMessage)
		return true
	}

	log.WithFields(logrus.Fields{
		"reminder_id":  reminder.ID,
		"trigger_time": reminder.TriggerTime,
	}).Info("Reminder created successfully")

	s.reply(ctx, msg.ChannelID, s.acknowledgement(reminder.TriggerTime))
	return true
}

func (s *ReminderService) acknowledgement(trigger time.Time) string {
	now := time.Now()
	if s.parser.Now != nil {
		now = s.parser.Now()
	}
	return fmt.Sprintf("Reminder set for %s (%s)",
		trigger.Format(ackTimeLayout), humanize.RelTime(trigger, now, "ago", "from now"))
}

func (s *ReminderService) reply(ctx context.Context, channelID, text string) {
	if err := s.transport.Send(ctx, channelID, text); err != nil {
		s.logger.WithError(err).WithField("channel_id", channelID).Error("Failed to send reply")
	}
}

// SweepDue attempts delivery of every reminder due at now. Failures are
// logged per reminder and never stop the sweep; only a failing store query
// is returned as an error.
func (s *ReminderService) SweepDue(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	reminders, err := s.store.FindDue(ctx, now)
	if err != nil {
		return result, errors.Wrap(err, "due sweep")
	}

	for _, reminder := range reminders {
		result.Found++
		log := s.logger.WithFields(logrus.Fields{
			"reminder_id": reminder.ID,
			"user_id":     reminder.UserID,
		})

		if !s.claim(ctx, reminder, log) {
			result.Skipped++
			continue
		}

		if err := s.dispatch(ctx, reminder); err != nil {
			log.WithError(err).Error("Failed to send reminder notification")
			result.Failed++
			continue
		}

		result.Dispatched++
		log.Info("Reminder sent successfully")
	}

	if result.Found > 0 {
		s.logger.WithFields(logrus.Fields{
			"found":      result.Found,
			"dispatched": result.Dispatched,
			"skipped":    result.Skipped,
			"failed":     result.Failed,
		}).Info("Processed due reminders")
	}

	return result, nil
}

// claim reports whether this sweep may attempt delivery. Without a guard, or
// when the guard is unreachable, the attempt goes ahead.
func (s *ReminderService) claim(ctx context.Context, reminder models.Reminder, log *logrus.Entry) bool {
	if s.guard == nil {
		return true
	}

	ok, err := s.guard.Claim(ctx, reminder.ID)
	if err != nil {
		log.WithError(err).Warn("Dispatch claim unavailable, attempting delivery anyway")
		return true
	}
	if !ok {
		log.Debug("Reminder already attempted, skipping")
	}
	return ok
}

func (s *ReminderService) dispatch(ctx context.Context, reminder models.Reminder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during dispatch: %v", r)
		}
	}()

	mention, err := s.transport.ResolveUser(ctx, reminder.UserID)
	if err != nil {
		return errors.Wrap(err, "resolve requester")
	}

	link, err := s.transport.ResolveMessageLink(ctx, reminder.ChannelID, reminder.MessageID)
	if err != nil {
		return errors.Wrap(err, "resolve origin message")
	}

	if err := s.transport.Send(ctx, reminder.ChannelID, FormatNotification(mention, reminder.Message, link)); err != nil {
		return errors.Wrap(err, "send notification")
	}
	return nil
}

// SweepExpired deletes every reminder due at now and returns how many were
// removed.
func (s *ReminderService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.DeleteDue(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "cleanup sweep")
	}

	if n > 0 {
		s.logger.WithField("deleted", n).Info("Cleaned up reminders")
	}
	return n, nil
}

func FormatNotification(mention, text, link string) string {
	return fmt.Sprintf("Hey %s, you asked me to remind you about this: %s reference message: %s", mention, text, link)
}
