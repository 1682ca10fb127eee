package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/marketchat/internal/domain"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

func newTestServer(t *testing.T, status int, payload string) (*Client, chan recorded) {
	t.Helper()
	reqs := make(chan recorded, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization"), string(body)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok-1", time.Second, zerolog.Nop()), reqs
}

func TestGetOrCreateRoom(t *testing.T) {
	c, reqs := newTestServer(t, http.StatusOK, `{"room_id": 17}`)

	id, err := c.GetOrCreateRoom(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "17", id)

	r := <-reqs
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "/api/chat/get_or_create_room/", r.path)
	assert.Equal(t, "Bearer tok-1", r.auth)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(r.body), &body))
	assert.Equal(t, "42", body["target_user_id"])
}

func TestMyRooms(t *testing.T) {
	c, reqs := newTestServer(t, http.StatusOK, `[
		{"room_id": 1, "other_user_id": 9, "last_message": "hi", "timestamp": "2024-05-01T10:00:00Z", "name": "Maya", "profile_picture": null, "seen": false},
		{"room_id": "2", "other_user_id": "u-3", "last_message": "", "timestamp": 1714557600, "name": null, "seen": true}
	]`)

	rooms, err := c.MyRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	assert.Equal(t, "1", rooms[0].ID)
	assert.Equal(t, "9", rooms[0].CounterpartID)
	assert.Equal(t, "Maya", rooms[0].Label())
	assert.False(t, rooms[0].Seen)

	assert.Equal(t, "u-3", rooms[1].Label())
	assert.Equal(t, time.Unix(1714557600, 0).UTC(), rooms[1].LastActivityAt.UTC())

	assert.Equal(t, "/api/chat/get_my_rooms/", (<-reqs).path)
}

func TestRoomHistory(t *testing.T) {
	c, reqs := newTestServer(t, http.StatusOK, `[
		{"id": 5, "sender_id": 9, "is_me": false, "message": "hello", "timestamp": "2024-05-01T10:00:00Z", "file": null, "seen": true},
		{"id": 6, "sender_id": 1, "is_me": true, "message": "", "timestamp": "2024-05-01T10:01:00Z", "file": "https://cdn.test/a.png", "seen": false},
		{"id": 7, "sender_id": 1, "is_me": true, "message": "", "timestamp": "2024-05-01T10:02:00Z", "file": null, "seen": false}
	]`)

	msgs, err := c.RoomHistory(context.Background(), "room 1", "4")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "room 1", msgs[0].RoomID)
	require.NotNil(t, msgs[1].Attachment)
	assert.Equal(t, "image/png", msgs[1].Attachment.MimeType)
	assert.True(t, msgs[1].IsOwn("1"))

	r := <-reqs
	assert.Equal(t, "/api/chat/get_room_history/room 1", r.path)
	assert.Equal(t, "before=4", r.query)
}

func TestRoomHistory_NoBefore(t *testing.T) {
	c, reqs := newTestServer(t, http.StatusOK, `[]`)

	msgs, err := c.RoomHistory(context.Background(), "r1", "")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, (<-reqs).query)
}

func TestMarkSeen(t *testing.T) {
	c, reqs := newTestServer(t, http.StatusNoContent, "")

	require.NoError(t, c.MarkSeen(context.Background(), "r1"))
	r := <-reqs
	assert.Equal(t, http.MethodPatch, r.method)
	assert.Equal(t, "/api/chat/mark_seen/r1", r.path)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuth},
		{"forbidden", http.StatusForbidden, domain.ErrAuth},
		{"not found", http.StatusNotFound, ErrAPI},
		{"server error", http.StatusInternalServerError, ErrAPI},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestServer(t, tc.status, `{"error": "nope"}`)
			_, err := c.MyRooms(context.Background())
			require.ErrorIs(t, err, tc.want)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.status, se.Status)
			assert.Equal(t, "nope", se.Message)
		})
	}
}
