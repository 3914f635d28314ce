package bot

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"remindme/internal/models"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type sent struct {
	channelID string
	content   string
}

type fakeSession struct {
	mu       sync.Mutex
	users    map[string]*discordgo.User
	channels map[string]*discordgo.Channel
	messages map[string]*discordgo.Message
	sendErr  error
	sent     []sent
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		users:    map[string]*discordgo.User{},
		channels: map[string]*discordgo.Channel{},
		messages: map[string]*discordgo.Message{},
	}
}

func (f *fakeSession) User(userID string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, errors.New("HTTP 404 Not Found, Unknown User")
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if c, ok := f.channels[channelID]; ok {
		return c, nil
	}
	return nil, errors.New("HTTP 404 Not Found, Unknown Channel")
}

func (f *fakeSession) ChannelMessage(_, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m, ok := f.messages[messageID]; ok {
		return m, nil
	}
	return nil, errors.New("HTTP 404 Not Found, Unknown Message")
}

func (f *fakeSession) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sent{channelID: channelID, content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) sentMessages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestBot_ResolveUser(t *testing.T) {
	session := newFakeSession()
	session.users["42"] = &discordgo.User{ID: "42", Username: "alice"}
	b := NewBot(session, nil, quietLogger())

	mention, err := b.ResolveUser(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "<@42>", mention)

	_, err = b.ResolveUser(context.Background(), "404")
	assert.Error(t, err)
}

func TestBot_ResolveMessageLink(t *testing.T) {
	session := newFakeSession()
	session.messages["m-guild"] = &discordgo.Message{ID: "m-guild", ChannelID: "c1", GuildID: "g1"}
	session.messages["m-nogid"] = &discordgo.Message{ID: "m-nogid", ChannelID: "c2"}
	session.channels["c2"] = &discordgo.Channel{ID: "c2", GuildID: "g2"}
	session.messages["m-dm"] = &discordgo.Message{ID: "m-dm", ChannelID: "dm"}
	session.channels["dm"] = &discordgo.Channel{ID: "dm", Type: discordgo.ChannelTypeDM}
	b := NewBot(session, nil, quietLogger())
	ctx := context.Background()

	link, err := b.ResolveMessageLink(ctx, "c1", "m-guild")
	require.NoError(t, err)
	assert.Equal(t, "https://discord.com/channels/g1/c1/m-guild", link)

	link, err = b.ResolveMessageLink(ctx, "c2", "m-nogid")
	require.NoError(t, err)
	assert.Equal(t, "https://discord.com/channels/g2/c2/m-nogid", link)

	link, err = b.ResolveMessageLink(ctx, "dm", "m-dm")
	require.NoError(t, err)
	assert.Equal(t, "https://discord.com/channels/@me/dm/m-dm", link)

	_, err = b.ResolveMessageLink(ctx, "c1", "deleted")
	assert.Error(t, err)
}

func TestBot_Send(t *testing.T) {
	session := newFakeSession()
	b := NewBot(session, nil, quietLogger())

	require.NoError(t, b.Send(context.Background(), "c1", "hello"))
	assert.Equal(t, []sent{{channelID: "c1", content: "hello"}}, session.sentMessages())

	session.sendErr = errors.New("Missing Permissions")
	assert.Error(t, b.Send(context.Background(), "c1", "again"))
}

func TestBot_SendRespectsLimiter(t *testing.T) {
	session := newFakeSession()
	b := NewBot(session, rate.NewLimiter(rate.Every(time.Hour), 1), quietLogger())

	require.NoError(t, b.Send(context.Background(), "c1", "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Send(ctx, "c1", "second"), "second send must wait past the deadline")
	assert.Len(t, session.sentMessages(), 1)
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []models.IncomingMessage
}

func (r *recordingHandler) HandleCommand(_ context.Context, msg models.IncomingMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return true
}

func TestHandler_Help(t *testing.T) {
	session := newFakeSession()
	reminders := &recordingHandler{}
	h := NewHandler(reminders, NewBot(session, nil, quietLogger()), quietLogger())

	h.ProcessMessage(context.Background(), models.IncomingMessage{ID: "1", AuthorID: "u", ChannelID: "c1", Content: " !help "})

	msgs := session.sentMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].content, "!remindme 2021-01-01-12-00")
	assert.Empty(t, reminders.msgs)
}

func TestHandler_IgnoresBots(t *testing.T) {
	reminders := &recordingHandler{}
	h := NewHandler(reminders, NewBot(newFakeSession(), nil, quietLogger()), quietLogger())

	h.ProcessMessage(context.Background(), models.IncomingMessage{AuthorIsBot: true, Content: "!remindme 1m hi"})
	assert.Empty(t, reminders.msgs)
}

func TestHandler_OnMessageCreate(t *testing.T) {
	reminders := &recordingHandler{}
	h := NewHandler(reminders, NewBot(newFakeSession(), nil, quietLogger()), quietLogger())

	h.OnMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "!remindme 1m hi",
		Author:    &discordgo.User{ID: "u1"},
	}})
	h.OnMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{ID: "m2"}})

	require.Len(t, reminders.msgs, 1)
	assert.Equal(t, models.IncomingMessage{
		ID: "m1", AuthorID: "u1", ChannelID: "c1", GuildID: "g1", Content: "!remindme 1m hi",
	}, reminders.msgs[0])
}
