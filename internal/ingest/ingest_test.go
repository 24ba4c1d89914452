package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"stats-bot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type write struct {
	collection string
	record     interface{}
}

// fakeBackup 记录所有追加
type fakeBackup struct {
	mu     sync.Mutex
	writes []write
	err    error
}

func (f *fakeBackup) Append(collection string, record interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{collection, record})
	return f.err
}

// fakeQuery 以 message_id 为键的内存表
type fakeQuery struct {
	mu       sync.Mutex
	appends  []write
	updates  []write
	messages map[int64]models.Message
	err      error
}

func newFakeQuery() *fakeQuery {
	return &fakeQuery{messages: make(map[int64]models.Message)}
}

func (f *fakeQuery) Append(_ context.Context, collection string, record interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, write{collection, record})
	if f.err != nil {
		return f.err
	}
	if msg, ok := record.(*models.Message); ok {
		f.messages[msg.MessageID] = *msg
	}
	return nil
}

func (f *fakeQuery) Update(_ context.Context, collection string, record interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, write{collection, record})
	if f.err != nil {
		return f.err
	}
	msg := record.(*models.Message)
	f.messages[msg.MessageID] = *msg
	return nil
}

func sender(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: fmt.Sprintf("user%d", id)}
}

func TestNormalize_TextMessage(t *testing.T) {
	msg := &tgbotapi.Message{
		MessageID:      10,
		From:           sender(1),
		Date:           1700000000,
		Chat:           &tgbotapi.Chat{ID: -100},
		Text:           "hello",
		ReplyToMessage: &tgbotapi.Message{MessageID: 9},
		ForwardFrom:    sender(2),
	}

	n := Normalize(msg, false)
	require.NotNil(t, n.Message)
	assert.False(t, n.Edited)
	assert.Empty(t, n.UserEvents)
	assert.Equal(t, int64(10), n.Message.MessageID)
	assert.Equal(t, int64(1), n.Message.Author())
	assert.Equal(t, models.MessageTypeText, n.Message.Type)
	assert.Equal(t, "hello", *n.Message.Text)
	assert.Equal(t, int64(9), *n.Message.ReplyToMessage)
	assert.Equal(t, int64(2), *n.Message.ForwardFrom)
	assert.Nil(t, n.Message.ForwardFromMessageID)
	assert.Equal(t, int64(1700000000), n.Message.Date.Unix())
}

func TestNormalize_MediaTypes(t *testing.T) {
	cases := []struct {
		name   string
		msg    tgbotapi.Message
		typ    string
		fileID string
	}{
		{"photo", tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}}, Caption: "c"}, models.MessageTypePhoto, "big"},
		{"sticker", tgbotapi.Message{Sticker: &tgbotapi.Sticker{FileID: "s", SetName: "set"}}, models.MessageTypeSticker, "s"},
		{"animation", tgbotapi.Message{Animation: &tgbotapi.Animation{FileID: "a"}, Document: &tgbotapi.Document{FileID: "a"}}, models.MessageTypeAnimation, "a"},
		{"voice", tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v"}}, models.MessageTypeVoice, "v"},
		{"document", tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d"}}, models.MessageTypeDocument, "d"},
		{"title", tgbotapi.Message{NewChatTitle: "new"}, models.MessageTypeNewChatTitle, ""},
		{"dice", tgbotapi.Message{Dice: &tgbotapi.Dice{Emoji: "🎲", Value: 3}}, models.MessageTypeOther, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.msg
			msg.MessageID = 1
			msg.Date = 1
			msg.From = sender(1)

			n := Normalize(&msg, false)
			require.NotNil(t, n.Message)
			assert.Equal(t, tc.typ, n.Message.Type)
			if tc.fileID == "" {
				assert.Nil(t, n.Message.FileID)
			} else {
				assert.Equal(t, tc.fileID, *n.Message.FileID)
			}
		})
	}
}

func TestNormalize_MembershipOnly(t *testing.T) {
	newEventID = func() string { return "fixed" }
	defer func() { newEventID = defaultEventID }()

	msg := &tgbotapi.Message{
		MessageID:      20,
		From:           sender(1),
		Date:           1700000000,
		NewChatMembers: []tgbotapi.User{*sender(1), *sender(5)},
	}

	n := Normalize(msg, false)
	assert.Nil(t, n.Message, "membership service messages carry no message record")
	require.Len(t, n.UserEvents, 2)

	self := n.UserEvents[0]
	assert.Equal(t, models.UserEventJoined, self.Event)
	assert.Equal(t, int64(1), self.UserID)
	assert.Nil(t, self.InvitedBy)

	invited := n.UserEvents[1]
	assert.Equal(t, int64(5), invited.UserID)
	assert.Equal(t, int64(1), *invited.InvitedBy)
	assert.Equal(t, "fixed", invited.ID)

	left := Normalize(&tgbotapi.Message{MessageID: 21, From: sender(5), Date: 1, LeftChatMember: sender(5)}, false)
	require.Len(t, left.UserEvents, 1)
	assert.Equal(t, models.UserEventLeft, left.UserEvents[0].Event)
}

func TestNormalize_NoRecord(t *testing.T) {
	assert.True(t, Normalize(nil, false).Empty())
	assert.True(t, Normalize(&tgbotapi.Message{MessageID: 1, Date: 1, Text: "x"}, false).Empty(), "missing sender")
	assert.True(t, Normalize(&tgbotapi.Message{From: sender(1), Date: 1, Text: "x"}, false).Empty(), "missing id")
	assert.True(t, Normalize(&tgbotapi.Message{MessageID: 1, From: sender(1), Date: 1}, false).Empty(), "no content")
}

func TestNormalize_EditIgnoresMembership(t *testing.T) {
	msg := &tgbotapi.Message{MessageID: 3, From: sender(1), Date: 1, Text: "fixed typo", NewChatMembers: []tgbotapi.User{*sender(2)}}
	n := Normalize(msg, true)
	assert.True(t, n.Edited)
	assert.Empty(t, n.UserEvents)
	require.NotNil(t, n.Message)
}

func TestWriter_AppendIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	msg := &models.Message{MessageID: 1, Type: models.MessageTypeText}

	backup := &fakeBackup{err: errors.New("disk full")}
	query := newFakeQuery()
	err := NewWriter(backup, query).Append(ctx, models.CollectionMessages, msg)
	assert.ErrorContains(t, err, "backup store")
	assert.Len(t, backup.writes, 1)
	assert.Len(t, query.appends, 1, "query write still attempted exactly once")

	backup = &fakeBackup{}
	query = newFakeQuery()
	query.err = errors.New("connection refused")
	err = NewWriter(backup, query).Append(ctx, models.CollectionMessages, msg)
	assert.ErrorContains(t, err, "query store")
	assert.NotContains(t, err.Error(), "backup store")
	assert.Len(t, backup.writes, 1)
	assert.Len(t, query.appends, 1)
}

func TestWriter_EditKeepsHistory(t *testing.T) {
	ctx := context.Background()
	backup := &fakeBackup{}
	query := newFakeQuery()
	w := NewWriter(backup, query)

	original := &tgbotapi.Message{MessageID: 7, From: sender(1), Date: 100, Text: "helo"}
	edited := &tgbotapi.Message{MessageID: 7, From: sender(1), Date: 100, Text: "hello", EditDate: 120}

	w.Log(ctx, Normalize(original, false))
	w.Log(ctx, Normalize(edited, true))

	require.Len(t, backup.writes, 2)
	assert.Equal(t, models.CollectionMessages, backup.writes[0].collection)
	assert.Equal(t, models.CollectionEditedMessages, backup.writes[1].collection)
	assert.Equal(t, "helo", *backup.writes[0].record.(*models.Message).Text)
	assert.Equal(t, "hello", *backup.writes[1].record.(*models.Message).Text)

	require.Len(t, query.messages, 1)
	assert.Equal(t, "hello", *query.messages[7].Text)
	assert.Len(t, query.appends, 1)
	assert.Len(t, query.updates, 1)
}

func TestWriter_LogRoutesEachRecord(t *testing.T) {
	ctx := context.Background()
	backup := &fakeBackup{}
	query := newFakeQuery()
	query.err = errors.New("down")
	w := NewWriter(backup, query)

	msg := &tgbotapi.Message{
		MessageID:      30,
		From:           sender(1),
		Date:           1,
		NewChatMembers: []tgbotapi.User{*sender(2), *sender(3)},
	}
	w.Log(ctx, Normalize(msg, false))

	assert.Len(t, backup.writes, 2, "one failing record does not abort the rest")
	for _, wr := range backup.writes {
		assert.Equal(t, models.CollectionUserEvents, wr.collection)
	}
	assert.Len(t, query.appends, 2)
}

func TestWriter_EmptyEventWritesNothing(t *testing.T) {
	backup := &fakeBackup{}
	query := newFakeQuery()
	w := NewWriter(backup, query)

	w.Log(context.Background(), Normalize(&tgbotapi.Message{MessageID: 1, From: sender(1), Date: 1}, false))
	w.Log(context.Background(), Normalize(&tgbotapi.Message{MessageID: 2, Date: 1, Text: "no sender"}, true))

	assert.Empty(t, backup.writes)
	assert.Empty(t, query.appends)
	assert.Empty(t, query.updates)
}
