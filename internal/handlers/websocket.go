package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/database"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/middleware"
	ws "github.com/thereayou/marketchat/internal/websocket"
)

// WebSocketHandler управляет WebSocket соединениями
type WebSocketHandler struct {
	db             *database.Database
	hub            *ws.Hub
	messageHandler ws.ClientMessageHandler
	upgrader       websocket.Upgrader
	timings        ws.Timings
	logger         zerolog.Logger

	// ctx живёт до остановки сервера, а не до конца HTTP-запроса
	ctx context.Context
}

// NewWebSocketHandler создает новый WebSocket handler
func NewWebSocketHandler(ctx context.Context, db *database.Database, hub *ws.Hub, messageHandler ws.ClientMessageHandler, timings ws.Timings, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		db:             db,
		hub:            hub,
		messageHandler: messageHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: ограничить origin доменами маркетплейса, когда появится конфиг с их списком
				return true
			},
		},
		timings: timings,
		logger:  logging.Component(logger, "ws_handler"),
		ctx:     ctx,
	}
}

// HandleWebSocket подключает пользователя к сокету комнаты /ws/chat/:room_id
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	roomID, err := uuid.Parse(c.Param("room_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid room id")
		return
	}

	member, err := h.db.IsRoomMember(roomID, userID)
	switch {
	case errors.Is(err, database.ErrRoomNotFound):
		respondError(c, http.StatusNotFound, "room not found")
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "failed to get room")
		return
	case !member:
		respondError(c, http.StatusForbidden, "you are not a member of this room")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, userID, roomID, h.timings)
	if err := h.hub.Register(client); err != nil {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h.ctx, h.messageHandler)
}
