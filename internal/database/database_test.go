package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/marketchat/internal/models"
	"gorm.io/driver/sqlite"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	d, err := Open(sqlite.Open(dsn), zerolog.Nop())
	require.NoError(t, err)

	sqlDB, err := d.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return d
}

func newUsers(t *testing.T, d *Database, names ...string) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		ids[i] = uuid.New()
		require.NoError(t, d.EnsureUser(ids[i], name))
	}
	return ids
}

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func saveAt(t *testing.T, d *Database, roomID, userID uuid.UUID, text string, minute int) models.Message {
	t.Helper()
	m := models.Message{RoomID: roomID, UserID: userID, Content: text, CreatedAt: base.Add(time.Duration(minute) * time.Minute)}
	require.NoError(t, d.SaveMessage(&m))
	return m
}

func TestGetOrCreateDirectRoom_Idempotent(t *testing.T) {
	d := newTestDB(t)
	ids := newUsers(t, d, "Maya", "Marcus")

	first, err := d.GetOrCreateDirectRoom(ids[0], ids[1])
	require.NoError(t, err)
	second, err := d.GetOrCreateDirectRoom(ids[1], ids[0])
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = d.GetOrCreateDirectRoom(ids[0], ids[0])
	assert.ErrorIs(t, err, ErrSelfRoom)

	member, err := d.IsRoomMember(first.ID, ids[1])
	require.NoError(t, err)
	assert.True(t, member)

	member, err = d.IsRoomMember(first.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, member)

	_, err = d.IsRoomMember(uuid.New(), ids[0])
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestGetRoomMessages_Pagination(t *testing.T) {
	d := newTestDB(t)
	ids := newUsers(t, d, "a", "b")
	room, err := d.GetOrCreateDirectRoom(ids[0], ids[1])
	require.NoError(t, err)

	var saved []models.Message
	for i := 0; i < 7; i++ {
		saved = append(saved, saveAt(t, d, room.ID, ids[i%2], fmt.Sprintf("m%d", i), i))
	}

	latest, err := d.GetRoomMessages(room.ID, 3, nil)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{"m4", "m5", "m6"}, contents(latest))

	older, err := d.GetRoomMessages(room.ID, 3, &latest[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, contents(older))

	oldest, err := d.GetRoomMessages(room.ID, 3, &older[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m0"}, contents(oldest))

	empty, err := d.GetRoomMessages(room.ID, 3, &saved[0].ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	missing := uuid.New()
	_, err = d.GetRoomMessages(room.ID, 3, &missing)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestGetUserRooms_SeenAndOrder(t *testing.T) {
	d := newTestDB(t)
	ids := newUsers(t, d, "me", "Maya", "Zoe")
	me := ids[0]

	withMaya, err := d.GetOrCreateDirectRoom(me, ids[1])
	require.NoError(t, err)
	withZoe, err := d.GetOrCreateDirectRoom(ids[2], me)
	require.NoError(t, err)

	saveAt(t, d, withZoe.ID, ids[2], "old", 1)
	saveAt(t, d, withMaya.ID, me, "mine", 2)
	saveAt(t, d, withMaya.ID, ids[1], "reply", 3)

	rooms, err := d.GetUserRooms(me)
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	assert.Equal(t, withMaya.ID, rooms[0].Room.ID)
	assert.Equal(t, "Maya", rooms[0].Counterpart.DisplayName)
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "reply", rooms[0].LastMessage.Content)
	assert.False(t, rooms[0].Seen)

	assert.Equal(t, "Zoe", rooms[1].Counterpart.DisplayName)
	assert.False(t, rooms[1].Seen)

	require.NoError(t, d.MarkRoomRead(withMaya.ID, me, base.Add(10*time.Minute)))
	rooms, err = d.GetUserRooms(me)
	require.NoError(t, err)
	assert.True(t, rooms[0].Seen)
	assert.False(t, rooms[1].Seen)

	// для Maya непрочитано только моё сообщение, её ответ не считается
	require.NoError(t, d.MarkRoomRead(withMaya.ID, ids[1], base.Add(2*time.Minute)))
	theirs, err := d.GetUserRooms(ids[1])
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.True(t, theirs[0].Seen)
}

func TestMarkRoomRead_OnlyMovesForward(t *testing.T) {
	d := newTestDB(t)
	ids := newUsers(t, d, "a", "b")
	room, err := d.GetOrCreateDirectRoom(ids[0], ids[1])
	require.NoError(t, err)

	at, err := d.LastReadAt(room.ID, ids[0])
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	require.NoError(t, d.MarkRoomRead(room.ID, ids[0], base))
	require.NoError(t, d.MarkRoomRead(room.ID, ids[0], base.Add(time.Hour)))
	require.NoError(t, d.MarkRoomRead(room.ID, ids[0], base.Add(time.Minute)))

	at, err = d.LastReadAt(room.ID, ids[0])
	require.NoError(t, err)
	assert.True(t, at.Equal(base.Add(time.Hour)))
}

func TestEnsureUser_KeepsNameWhenEmpty(t *testing.T) {
	d := newTestDB(t)
	id := uuid.New()
	require.NoError(t, d.EnsureUser(id, "Maya"))
	require.NoError(t, d.EnsureUser(id, ""))

	u, err := d.GetUser(id)
	require.NoError(t, err)
	assert.Equal(t, "Maya", u.DisplayName)
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
