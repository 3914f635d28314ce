package models

import "time"

// IncomingMessage is a chat message as seen by the command handlers,
// independent of the transport it arrived on.
type IncomingMessage struct {
	ID          string `json:"id"`
	AuthorID    string `json:"author_id"`
	AuthorIsBot bool   `json:"author_is_bot"`
	ChannelID   string `json:"channel_id"`
	GuildID     string `json:"guild_id,omitempty"`
	Content     string `json:"content"`
}

type Command struct {
	Expression  string    `json:"expression"`
	Text        string    `json:"text"`
	TriggerTime time.Time `json:"trigger_time"`
}
