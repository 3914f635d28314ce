package models

import "time"

// Reminder is a scheduled notification. It is never updated after creation;
// a reminder that has been swept is removed from the store.
type Reminder struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	ChannelID   string    `json:"channel_id" db:"channel_id"`
	MessageID   string    `json:"message_id" db:"message_id"`
	Message     string    `json:"message" db:"message_content"`
	TriggerTime time.Time `json:"trigger_time" db:"trigger_time"`
}

// Due reports whether the reminder's trigger time is strictly before now.
func (r Reminder) Due(now time.Time) bool {
	return r.TriggerTime.Before(now)
}
