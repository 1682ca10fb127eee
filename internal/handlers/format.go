package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/marketchat/internal/database"
	"github.com/thereayou/marketchat/internal/models"
	"github.com/thereayou/marketchat/internal/protocol"
)

func formatRoom(s database.RoomSummary) protocol.RoomDTO {
	dto := protocol.RoomDTO{
		RoomID:      protocol.FlexID(s.Room.ID.String()),
		OtherUserID: protocol.FlexID(s.Counterpart.ID.String()),
		Timestamp:   protocol.NewFlexTime(s.LastActivity()),
		Seen:        s.Seen,
	}
	if s.LastMessage != nil {
		dto.LastMessage = s.LastMessage.Content
		if dto.LastMessage == "" && s.LastMessage.FileURL != "" {
			dto.LastMessage = s.LastMessage.FileName
		}
	}
	if s.Counterpart.DisplayName != "" {
		name := s.Counterpart.DisplayName
		dto.Name = &name
	}
	if s.Counterpart.AvatarURL != "" {
		avatar := s.Counterpart.AvatarURL
		dto.ProfilePicture = &avatar
	}
	return dto
}

// formatMessage readAt отметка прочтения получателя этого сообщения
func formatMessage(m models.Message, viewerID uuid.UUID, readAt time.Time) protocol.MessageDTO {
	dto := protocol.MessageDTO{
		ID:        protocol.FlexID(m.ID.String()),
		SenderID:  protocol.FlexID(m.UserID.String()),
		IsMe:      m.UserID == viewerID,
		Message:   m.Content,
		Timestamp: protocol.NewFlexTime(m.CreatedAt),
		FileName:  m.FileName,
		Seen:      !readAt.IsZero() && !m.CreatedAt.After(readAt),
	}
	if m.FileURL != "" {
		file := m.FileURL
		dto.File = &file
	}
	return dto
}

func serverFrame(m models.Message) protocol.ServerFrame {
	return protocol.ServerFrame{
		Type:      protocol.TypeChatMessage,
		ID:        m.ID.String(),
		RoomID:    m.RoomID.String(),
		SenderID:  m.UserID.String(),
		Message:   m.Content,
		File:      m.FileURL,
		FileName:  m.FileName,
		Timestamp: protocol.NewFlexTime(m.CreatedAt),
	}
}
