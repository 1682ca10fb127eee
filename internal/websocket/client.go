package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/config"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/protocol"
)

// Timings тайминги серверной стороны сокета
type Timings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendQueueSize  int
}

func TimingsFrom(ws config.WebSocketConfig) Timings {
	return Timings{
		WriteWait:      ws.WriteWait,
		PongWait:       ws.PongWait,
		PingPeriod:     ws.PingPeriod,
		MaxMessageSize: ws.MaxMessageSize,
		SendQueueSize:  ws.SendQueueSize,
	}.withDefaults()
}

func (t Timings) withDefaults() Timings {
	if t.WriteWait <= 0 {
		t.WriteWait = 10 * time.Second
	}
	if t.PongWait <= 0 {
		t.PongWait = 60 * time.Second
	}
	if t.PingPeriod <= 0 || t.PingPeriod >= t.PongWait {
		t.PingPeriod = (t.PongWait * 9) / 10
	}
	if t.MaxMessageSize <= 0 {
		t.MaxMessageSize = 512 * 1024
	}
	if t.SendQueueSize <= 0 {
		t.SendQueueSize = 256
	}
	return t
}

// ClientMessageHandler обрабатывает chat_message от клиента
type ClientMessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, frame protocol.OutboundFrame) error
}

// Client одно соединение пользователя с комнатой
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	RoomID uuid.UUID

	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	timings Timings
	logger  zerolog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, roomID uuid.UUID, timings Timings) *Client {
	timings = timings.withDefaults()
	id := uuid.New()
	return &Client{
		ID:      id,
		UserID:  userID,
		RoomID:  roomID,
		conn:    conn,
		send:    make(chan []byte, timings.SendQueueSize),
		hub:     hub,
		timings: timings,
		logger: hub.logger.With().
			Str("client_id", id.String()).
			Str(logging.FieldRoomID, roomID.String()).
			Str(logging.FieldUserID, userID.String()).
			Logger(),
	}
}

// ReadPump читает сообщения от клиента до разрыва соединения
func (c *Client) ReadPump(ctx context.Context, handler ClientMessageHandler) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.timings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.timings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.timings.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		frame, err := decodeFrame(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("invalid frame")
			c.SendError(err.Error())
			continue
		}

		if handler == nil {
			continue
		}
		if err := handler.HandleMessage(ctx, c, frame); err != nil {
			c.logger.Error().Err(err).Msg("error handling message")
			c.SendError(err.Error())
		}
	}
}

// WritePump единственный писатель в соединение
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.timings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.timings.WriteWait))
			if !ok {
				// Hub закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.timings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendFrame ставит фрейм в очередь только этого соединения
func (c *Client) SendFrame(frame protocol.ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) SendError(errorMsg string) {
	err := c.SendFrame(protocol.ServerFrame{
		Type:      protocol.TypeError,
		RoomID:    c.RoomID.String(),
		Error:     errorMsg,
		Timestamp: protocol.NewFlexTime(time.Now()),
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("error frame dropped")
	}
}

func decodeFrame(data []byte) (protocol.OutboundFrame, error) {
	var frame protocol.OutboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return frame, ErrInvalidMessage
	}
	if frame.Type == "" {
		frame.Type = protocol.TypeChatMessage
	}
	if frame.Type != protocol.TypeChatMessage {
		return frame, errors.Join(ErrInvalidMessage, protocol.ErrUnsupportedFrame)
	}
	if frame.Empty() {
		return frame, errors.Join(ErrInvalidMessage, protocol.ErrMalformedFrame)
	}
	return frame, nil
}
