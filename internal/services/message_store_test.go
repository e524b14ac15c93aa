package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/database/testutil"
	"github.com/fadmann/chat/internal/models"
	apperrors "github.com/fadmann/chat/pkg/errors"
)

type storeFixture struct {
	db    *gorm.DB
	store *MessageStore
	room  models.Room
	other models.Room
	alice models.AuthorSnapshot
	bob   models.AuthorSnapshot
}

func newStoreFixture(t *testing.T) storeFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	store, err := NewMessageStore(db)
	require.NoError(t, err)

	var rooms []models.Room
	require.NoError(t, db.Order("name").Limit(2).Find(&rooms).Error)
	require.Len(t, rooms, 2)

	alice := models.User{Username: "alice", DisplayName: "Alice"}
	bob := models.User{Username: "bob", DisplayName: "Bob"}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)

	return storeFixture{
		db:    db,
		store: store,
		room:  rooms[0],
		other: rooms[1],
		alice: models.AuthorSnapshot{ID: alice.ID, Username: alice.Username, DisplayName: alice.DisplayName},
		bob:   models.AuthorSnapshot{ID: bob.ID, Username: bob.Username, DisplayName: bob.DisplayName},
	}
}

func (f storeFixture) post(t *testing.T, roomID string, author models.AuthorSnapshot, content string) *models.Message {
	t.Helper()
	msg, err := f.store.AppendMessage(context.Background(), AppendMessageInput{RoomID: roomID, Author: author, Content: content})
	require.NoError(t, err)
	return msg
}

func TestNewMessageStoreRequiresDB(t *testing.T) {
	_, err := NewMessageStore(nil)
	require.Error(t, err)
}

func TestAppendMessagePersistsAuthorSnapshot(t *testing.T) {
	f := newStoreFixture(t)

	msg := f.post(t, f.room.ID, f.alice, "hello world")
	require.NotEmpty(t, msg.ID)
	require.False(t, msg.CreatedAt.IsZero())

	loaded, err := f.store.GetMessage(context.Background(), f.room.ID, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "hello world", loaded.Content)
	require.Equal(t, f.alice, loaded.Author.Data())
	require.Nil(t, loaded.ReplyTo)
	require.Empty(t, loaded.Reactions)
}

func TestAppendMessageReplyInSameRoom(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	parent := f.post(t, f.room.ID, f.bob, "original")
	reply, err := f.store.AppendMessage(ctx, AppendMessageInput{
		RoomID:  f.room.ID,
		Author:  f.alice,
		Content: "agreed",
		ReplyTo: &parent.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	require.Equal(t, parent.ID, *reply.ReplyTo)
	require.NotNil(t, reply.Parent)
	require.Equal(t, "original", reply.Parent.Content)
}

func TestAppendMessageRejectsForeignReply(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	elsewhere := f.post(t, f.other.ID, f.bob, "other room")

	_, err := f.store.AppendMessage(ctx, AppendMessageInput{
		RoomID:  f.room.ID,
		Author:  f.alice,
		Content: "reply",
		ReplyTo: &elsewhere.ID,
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidReply)

	missing := "does-not-exist"
	_, err = f.store.AppendMessage(ctx, AppendMessageInput{RoomID: f.room.ID, Author: f.alice, Content: "x", ReplyTo: &missing})
	require.ErrorIs(t, err, apperrors.ErrInvalidReply)

	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("room_id = ?", f.room.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestAppendMessageFailsForUnknownRoom(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.AppendMessage(context.Background(), AppendMessageInput{RoomID: "missing-room", Author: f.alice, Content: "x"})
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrInvalidReply)
}

func TestGetMessageScopedToRoom(t *testing.T) {
	f := newStoreFixture(t)

	msg := f.post(t, f.room.ID, f.alice, "scoped")
	_, err := f.store.GetMessage(context.Background(), f.other.ID, msg.ID)
	require.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestHistoryOldestFirstWithLimitAndCursor(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"one", "two", "three", "four"} {
		msg := f.post(t, f.room.ID, f.alice, content)
		require.NoError(t, f.db.Model(msg).Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}
	f.post(t, f.other.ID, f.bob, "elsewhere")

	all, err := f.store.History(ctx, HistoryQuery{RoomID: f.room.ID})
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three", "four"}, contents(all))

	latest, err := f.store.History(ctx, HistoryQuery{RoomID: f.room.ID, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"three", "four"}, contents(latest))

	older, err := f.store.History(ctx, HistoryQuery{RoomID: f.room.ID, Limit: 2, Before: latest[0].CreatedAt})
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, contents(older))
}

func TestHistoryRequiresRoom(t *testing.T) {
	f := newStoreFixture(t)
	_, err := f.store.History(context.Background(), HistoryQuery{})
	require.Error(t, err)
}

func TestToggleReactionTwiceRestoresState(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	msg := f.post(t, f.room.ID, f.bob, "react to me")

	reactions, err := f.store.ToggleReaction(ctx, f.room.ID, msg.ID, f.alice.ID, "🔥")
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"🔥": {f.alice.ID}}, reactions)

	reactions, err = f.store.ToggleReaction(ctx, f.room.ID, msg.ID, f.bob.ID, "🔥")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{f.alice.ID, f.bob.ID}, reactions["🔥"])

	reactions, err = f.store.ToggleReaction(ctx, f.room.ID, msg.ID, f.alice.ID, "🔥")
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"🔥": {f.bob.ID}}, reactions)

	reactions, err = f.store.ToggleReaction(ctx, f.room.ID, msg.ID, f.bob.ID, "🔥")
	require.NoError(t, err)
	require.Empty(t, reactions)
}

func TestToggleReactionMissingMessage(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.ToggleReaction(ctx, f.room.ID, "nope", f.alice.ID, "👍")
	require.ErrorIs(t, err, apperrors.ErrMessageNotFound)

	elsewhere := f.post(t, f.other.ID, f.bob, "other room")
	_, err = f.store.ToggleReaction(ctx, f.room.ID, elsewhere.ID, f.alice.ID, "👍")
	require.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestRoomExists(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	ok, err := f.store.RoomExists(ctx, f.room.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.store.RoomExists(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.store.RoomExists(ctx, "  ")
	require.NoError(t, err)
	require.False(t, ok)
}

func contents(rows []models.Message) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Content)
	}
	return out
}
