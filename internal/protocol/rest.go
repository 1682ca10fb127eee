package protocol

import (
	"net/url"

	"github.com/thereayou/marketchat/internal/domain"
)

const (
	PathGetOrCreateRoom = "/api/chat/get_or_create_room/"
	PathMyRooms         = "/api/chat/get_my_rooms/"
	PathRoomHistory     = "/api/chat/get_room_history/"
	PathMarkSeen        = "/api/chat/mark_seen/"
	PathSocket          = "/ws/chat/"

	QueryBefore = "before"
	QueryToken  = "token"
)

type GetOrCreateRoomRequest struct {
	TargetUserID FlexID `json:"target_user_id" binding:"required"`
}

type GetOrCreateRoomResponse struct {
	RoomID FlexID `json:"room_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomDTO элемент ответа get_my_rooms
type RoomDTO struct {
	RoomID         FlexID   `json:"room_id"`
	OtherUserID    FlexID   `json:"other_user_id"`
	LastMessage    string   `json:"last_message"`
	Timestamp      FlexTime `json:"timestamp"`
	Name           *string  `json:"name"`
	ProfilePicture *string  `json:"profile_picture"`
	Seen           bool     `json:"seen"`
}

func (r RoomDTO) ToDomain() domain.Room {
	room := domain.Room{
		ID:                 r.RoomID.String(),
		CounterpartID:      r.OtherUserID.String(),
		LastMessagePreview: domain.Preview(r.LastMessage),
		LastActivityAt:     r.Timestamp.Time,
		Seen:               r.Seen,
	}
	if r.Name != nil {
		room.DisplayName = *r.Name
	}
	if r.ProfilePicture != nil {
		room.AvatarURL = *r.ProfilePicture
	}
	return room
}

// MessageDTO элемент ответа get_room_history
type MessageDTO struct {
	ID        FlexID   `json:"id"`
	SenderID  FlexID   `json:"sender_id"`
	IsMe      bool     `json:"is_me"`
	Message   string   `json:"message"`
	Timestamp FlexTime `json:"timestamp"`
	File      *string  `json:"file"`
	FileName  string   `json:"file_name,omitempty"`
	Seen      bool     `json:"seen"`
}

// ToDomain is_me не переносится: принадлежность вычисляется по sender_id
func (m MessageDTO) ToDomain(roomID string) domain.Message {
	msg := domain.Message{
		ID:        m.ID.String(),
		RoomID:    roomID,
		SenderID:  m.SenderID.String(),
		Text:      m.Message,
		Timestamp: m.Timestamp.Time,
		Seen:      m.Seen,
	}
	if m.File != nil && *m.File != "" {
		msg.Attachment = InferAttachment(*m.File, m.FileName)
	}
	return msg
}

func RoomHistoryPath(roomID string) string {
	return PathRoomHistory + url.PathEscape(roomID)
}

func MarkSeenPath(roomID string) string {
	return PathMarkSeen + url.PathEscape(roomID)
}

func SocketPath(roomID string) string {
	return PathSocket + url.PathEscape(roomID)
}
