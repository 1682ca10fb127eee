package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/protocol"
)

// Hub держит подключения, сгруппированные по комнатам.
// Каждая комната это диалог двух пользователей, но один пользователь может иметь несколько соединений.
type Hub struct {
	rooms map[uuid.UUID]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu     sync.RWMutex
	logger zerolog.Logger

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type BroadcastMessage struct {
	RoomID  uuid.UUID
	Message []byte
}

// NewHub создает новый Hub
func NewHub(logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[uuid.UUID]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 64),
		logger:     logging.Component(logger, "hub"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run запускает hub; завершается по ctx или Stop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return

		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.SendToRoom(message.RoomID, message.Message)
		}
	}
}

// Stop останавливает hub и закрывает все соединения
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID, room := range h.rooms {
		// send не закрываем: ReadPump ещё может писать в него ошибку
		for _, client := range room {
			client.conn.Close()
		}
		delete(h.rooms, roomID)
	}
}

// Register регистрирует нового клиента в его комнате
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// Unregister отменяет регистрацию клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast рассылает фрейм всем соединениям комнаты, включая отправителя
func (h *Hub) Broadcast(frame protocol.ServerFrame) error {
	roomID, err := uuid.Parse(frame.RoomID)
	if err != nil {
		return ErrInvalidMessage
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- &BroadcastMessage{RoomID: roomID, Message: data}:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[client.RoomID]; !ok {
		h.rooms[client.RoomID] = make(map[uuid.UUID]*Client)
	}
	h.rooms[client.RoomID][client.ID] = client

	h.logger.Debug().
		Str(logging.FieldRoomID, client.RoomID.String()).
		Str(logging.FieldUserID, client.UserID.String()).
		Msg("client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}
	if _, ok := room[client.ID]; !ok {
		return
	}

	delete(room, client.ID)
	if len(room) == 0 {
		delete(h.rooms, client.RoomID)
	}
	close(client.send)

	h.logger.Debug().
		Str(logging.FieldRoomID, client.RoomID.String()).
		Str(logging.FieldUserID, client.UserID.String()).
		Msg("client unregistered")
}

// SendToRoom отправляет готовое сообщение всем соединениям комнаты
func (h *Hub) SendToRoom(roomID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.rooms[roomID] {
		select {
		case client.send <- message:
		default:
			h.logger.Warn().
				Str(logging.FieldRoomID, roomID.String()).
				Str("client_id", client.ID.String()).
				Msg("client send channel full")
		}
	}
}

// RoomConnections число активных соединений комнаты
func (h *Hub) RoomConnections(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// GetRoomUsers возвращает список пользователей, подключённых к комнате
func (h *Hub) GetRoomUsers(roomID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userMap := make(map[uuid.UUID]bool)
	for _, client := range h.rooms[roomID] {
		userMap[client.UserID] = true
	}

	users := make([]uuid.UUID, 0, len(userMap))
	for userID := range userMap {
		users = append(users, userID)
	}
	return users
}
