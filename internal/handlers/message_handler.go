package handlers

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/database"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/models"
	"github.com/thereayou/marketchat/internal/protocol"
	"github.com/thereayou/marketchat/internal/websocket"
)

// MessageHandler сохраняет chat_message и рассылает его участникам комнаты
type MessageHandler struct {
	db     *database.Database
	hub    *websocket.Hub
	logger zerolog.Logger
}

func NewMessageHandler(db *database.Database, hub *websocket.Hub, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		db:     db,
		hub:    hub,
		logger: logging.Component(logger, "message_handler"),
	}
}

func (h *MessageHandler) HandleMessage(ctx context.Context, client *websocket.Client, frame protocol.OutboundFrame) error {
	message := &models.Message{
		RoomID:   client.RoomID,
		UserID:   client.UserID,
		Content:  strings.TrimSpace(frame.Message),
		FileURL:  frame.File,
		FileName: frame.FileName,
	}

	if err := h.db.WithContext(ctx).SaveMessage(message); err != nil {
		return err
	}

	// отправитель видел всё, что было до его сообщения
	if err := h.db.MarkRoomRead(message.RoomID, message.UserID, message.CreatedAt); err != nil {
		h.logger.Warn().Err(err).Str(logging.FieldRoomID, message.RoomID.String()).Msg("failed to advance read mark")
	}

	h.logger.Debug().
		Str(logging.FieldRoomID, message.RoomID.String()).
		Str(logging.FieldMessageID, message.ID.String()).
		Msg("message saved")

	return h.hub.Broadcast(serverFrame(*message))
}
