package repository

import (
	"context"
	"time"

	"remindme/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// DBTX is the subset of *pgxpool.Pool the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReminderRepository persists reminders. A reminder is due when its trigger
// time is strictly before the supplied now; FindDue and DeleteDue share that
// predicate so a FindDue followed by DeleteDue with the same now removes
// exactly what was found, barring concurrent inserts.
type ReminderRepository interface {
	Create(ctx context.Context, reminder models.Reminder) (models.Reminder, error)
	FindDue(ctx context.Context, now time.Time) ([]models.Reminder, error)
	DeleteDue(ctx context.Context, now time.Time) (int64, error)
}

type reminderRepository struct {
	db  DBTX
	loc *time.Location
}

// NewReminderRepository stores trigger times as wall-clock values in loc
// (the column has no time zone). A nil loc means time.Local.
func NewReminderRepository(db DBTX, loc *time.Location) ReminderRepository {
	if loc == nil {
		loc = time.Local
	}
	return &reminderRepository{db: db, loc: loc}
}

const (
	insertReminderQuery = `
	INSERT INTO reminders (user_id, channel_id, message_id, message_content, trigger_time)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
	`

	selectDueRemindersQuery = `
	SELECT id, user_id, channel_id, message_id, message_content, trigger_time
	FROM reminders
	WHERE trigger_time < $1
	ORDER BY trigger_time ASC, id ASC
	`

	deleteDueRemindersQuery = `
	DELETE FROM reminders
	WHERE trigger_time < $1
	`
)

func (r *reminderRepository) Create(ctx context.Context, reminder models.Reminder) (models.Reminder, error) {
	reminder.TriggerTime = reminder.TriggerTime.In(r.loc)

	var id int64
	err := r.db.QueryRow(ctx, insertReminderQuery,
		reminder.UserID,
		reminder.ChannelID,
		reminder.MessageID,
		reminder.Message,
		reminder.TriggerTime,
	).Scan(&id)
	if err != nil {
		return models.Reminder{}, errors.Wrap(err, "failed to create reminder")
	}

	reminder.ID = id
	return reminder, nil
}

func (r *reminderRepository) FindDue(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	rows, err := r.db.Query(ctx, selectDueRemindersQuery, now.In(r.loc))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query due reminders")
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		var reminder models.Reminder
		err := rows.Scan(
			&reminder.ID, &reminder.UserID, &reminder.ChannelID, &reminder.MessageID,
			&reminder.Message, &reminder.TriggerTime,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder row")
		}

		reminder.TriggerTime = r.wallClock(reminder.TriggerTime)
		reminders = append(reminders, reminder)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating reminder rows")
	}

	return reminders, nil
}

func (r *reminderRepository) DeleteDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, deleteDueRemindersQuery, now.In(r.loc))
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete due reminders")
	}
	return tag.RowsAffected(), nil
}

// wallClock reattaches the repository location to a timestamp read from a
// column without time zone, which pgx returns labelled as UTC.
func (r *reminderRepository) wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), r.loc)
}
