package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/database"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/middleware"
	"github.com/thereayou/marketchat/internal/models"
	"github.com/thereayou/marketchat/internal/protocol"
)

const DefaultHistoryPageSize = 30

// ChatHandler REST-эндпоинты чата
type ChatHandler struct {
	db       *database.Database
	pageSize int
	logger   zerolog.Logger
	now      func() time.Time
}

func NewChatHandler(db *database.Database, pageSize int, logger zerolog.Logger) *ChatHandler {
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	return &ChatHandler{
		db:       db,
		pageSize: pageSize,
		logger:   logging.Component(logger, "chat_handler"),
		now:      time.Now,
	}
}

// GetOrCreateRoom POST get_or_create_room: одна комната на пару пользователей
func (h *ChatHandler) GetOrCreateRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req protocol.GetOrCreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	targetID, err := uuid.Parse(req.TargetUserID.String())
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid target_user_id")
		return
	}

	// собеседник мог ещё ни разу не заходить в чат
	if err := h.db.EnsureUser(targetID, ""); err != nil {
		h.logger.Error().Err(err).Str(logging.FieldUserID, targetID.String()).Msg("failed to provision counterpart")
		respondError(c, http.StatusInternalServerError, "failed to get or create room")
		return
	}

	room, err := h.db.GetOrCreateDirectRoom(userID, targetID)
	if err != nil {
		if errors.Is(err, database.ErrSelfRoom) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("failed to get or create room")
		respondError(c, http.StatusInternalServerError, "failed to get or create room")
		return
	}

	c.JSON(http.StatusOK, protocol.GetOrCreateRoomResponse{RoomID: protocol.FlexID(room.ID.String())})
}

// GetMyRooms GET get_my_rooms
func (h *ChatHandler) GetMyRooms(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	rooms, err := h.db.GetUserRooms(userID)
	if err != nil {
		h.logger.Error().Err(err).Str(logging.FieldUserID, userID.String()).Msg("failed to get rooms")
		respondError(c, http.StatusInternalServerError, "failed to get rooms")
		return
	}

	response := make([]protocol.RoomDTO, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, formatRoom(room))
	}
	c.JSON(http.StatusOK, response)
}

// GetRoomHistory GET get_room_history/:room_id?before=<id>
func (h *ChatHandler) GetRoomHistory(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	room, ok := h.memberRoom(c, userID)
	if !ok {
		return
	}

	var beforeID *uuid.UUID
	if before := c.Query(protocol.QueryBefore); before != "" {
		id, err := uuid.Parse(before)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid before id")
			return
		}
		beforeID = &id
	}

	messages, err := h.db.GetRoomMessages(room.ID, h.pageSize, beforeID)
	if err != nil {
		if errors.Is(err, database.ErrMessageNotFound) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str(logging.FieldRoomID, room.ID.String()).Msg("failed to get messages")
		respondError(c, http.StatusInternalServerError, "failed to get messages")
		return
	}

	// seen считается с точки зрения получателя сообщения
	counterpart := room.Counterpart(userID)
	myReadAt, err := h.db.LastReadAt(room.ID, userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to get messages")
		return
	}
	theirReadAt, err := h.db.LastReadAt(room.ID, counterpart)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to get messages")
		return
	}

	response := make([]protocol.MessageDTO, 0, len(messages))
	for _, m := range messages {
		readAt := theirReadAt
		if m.UserID != userID {
			readAt = myReadAt
		}
		response = append(response, formatMessage(m, userID, readAt))
	}
	c.JSON(http.StatusOK, response)
}

// MarkSeen PATCH mark_seen/:room_id
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	room, ok := h.memberRoom(c, userID)
	if !ok {
		return
	}

	if err := h.db.MarkRoomRead(room.ID, userID, h.now()); err != nil {
		h.logger.Error().Err(err).Str(logging.FieldRoomID, room.ID.String()).Msg("failed to mark room read")
		respondError(c, http.StatusInternalServerError, "failed to mark room seen")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// memberRoom комната из :room_id, если пользователь в ней участвует; иначе ответ уже отправлен
func (h *ChatHandler) memberRoom(c *gin.Context, userID uuid.UUID) (*models.Room, bool) {
	roomID, err := uuid.Parse(c.Param("room_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid room id")
		return nil, false
	}

	room, err := h.db.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			respondError(c, http.StatusNotFound, "room not found")
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, "failed to get room")
		return nil, false
	}

	if !room.HasMember(userID) {
		respondError(c, http.StatusForbidden, "you are not a member of this room")
		return nil, false
	}
	return room, true
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{Error: msg})
}
