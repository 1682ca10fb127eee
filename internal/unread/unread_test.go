package unread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thereayou/marketchat/internal/domain"
)

func TestGlobalUnreadCount(t *testing.T) {
	rooms := []domain.Room{{ID: "1", Seen: false}, {ID: "2", Seen: true}, {ID: "3", Seen: false}}
	assert.Equal(t, 2, GlobalUnreadCount(rooms))

	rooms[0].Seen = true
	assert.Equal(t, 1, GlobalUnreadCount(rooms))

	assert.Zero(t, GlobalUnreadCount(nil))
}

func TestFirstUnreadIndex(t *testing.T) {
	tests := []struct {
		name     string
		messages []domain.Message
		want     int
	}{
		{"empty", nil, -1},
		{"all seen", []domain.Message{{SenderID: "2", Seen: true}}, -1},
		{
			name: "own unseen skipped",
			messages: []domain.Message{
				{SenderID: "me", Seen: false},
				{SenderID: "2", Seen: true},
				{SenderID: "2", Seen: false},
				{SenderID: "2", Seen: false},
			},
			want: 2,
		},
		{"only own", []domain.Message{{SenderID: "me"}, {SenderID: "me"}}, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FirstUnreadIndex(tc.messages, "me"))
		})
	}
}
