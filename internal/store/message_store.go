package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/protocol"
)

var (
	ErrStaleRoom  = errors.New("page belongs to a room that is no longer open")
	ErrNoRoom     = errors.New("no room is open")
	ErrNotPending = errors.New("message is not a pending optimistic entry")
)

// MessageStore упорядоченный лог сообщений открытой комнаты.
// Все операции синхронные и выполняются целиком под мьютексом.
type MessageStore struct {
	mu            sync.RWMutex
	currentUserID string
	roomID        string
	messages      []domain.Message
	ids           map[string]struct{}

	logger zerolog.Logger
	now    func() time.Time
}

func New(currentUserID string, logger zerolog.Logger) *MessageStore {
	return &MessageStore{
		currentUserID: currentUserID,
		ids:           make(map[string]struct{}),
		logger:        logging.Component(logger, "store"),
		now:           time.Now,
	}
}

// RoomID комната, к которой привязан лог
func (s *MessageStore) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// Reset очищает лог и привязывает его к новой комнате
func (s *MessageStore) Reset(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomID = roomID
	s.messages = nil
	s.ids = make(map[string]struct{})
}

// LoadInitial полностью заменяет лог первой страницей истории.
// Единственная операция, которая заменяет лог целиком.
func (s *MessageStore) LoadInitial(roomID string, page []domain.Message) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if roomID == "" {
		return nil, ErrNoRoom
	}
	if s.roomID != "" && s.roomID != roomID {
		return nil, ErrStaleRoom
	}

	s.roomID = roomID
	s.messages = make([]domain.Message, 0, len(page))
	s.ids = make(map[string]struct{}, len(page))
	for _, m := range page {
		s.insertLocked(s.normalize(m))
	}

	return s.snapshotLocked(), nil
}

// MergeOlderPage вставляет более старые сообщения в отсортированные позиции.
// Пустая страница ничего не меняет и возвращает 0.
func (s *MessageStore) MergeOlderPage(roomID string, page []domain.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roomID == "" {
		return 0, ErrNoRoom
	}
	if roomID != s.roomID {
		return 0, ErrStaleRoom
	}

	added := 0
	for _, m := range page {
		if s.insertLocked(s.normalize(m)) {
			added++
		}
	}
	return added, nil
}

// MergeLatestPage досливает последнюю страницу после переподключения.
// Пока в логе есть оптимистичные записи, свои сообщения со страницы пропускаются:
// их серверные копии нельзя отличить от уже показанных tmp-записей.
func (s *MessageStore) MergeLatestPage(roomID string, page []domain.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roomID == "" {
		return 0, ErrNoRoom
	}
	if roomID != s.roomID {
		return 0, ErrStaleRoom
	}

	skipOwn := s.hasPendingLocked()
	added := 0
	for _, m := range page {
		if skipOwn && m.SenderID == s.currentUserID {
			continue
		}
		if s.insertLocked(s.normalize(m)) {
			added++
		}
	}
	return added, nil
}

// AppendOptimistic сразу показывает своё сообщение с временным id
func (s *MessageStore) AppendOptimistic(draft domain.Draft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roomID == "" {
		return "", ErrNoRoom
	}
	if draft.Empty() {
		return "", domain.ErrEmptyMessage
	}

	msg := domain.Message{
		ID:         domain.TempIDPrefix + uuid.NewString(),
		RoomID:     s.roomID,
		SenderID:   s.currentUserID,
		Text:       draft.Text,
		Attachment: draft.Attachment,
		Timestamp:  s.now(),
		Pending:    true,
	}
	s.insertLocked(msg)
	return msg.ID, nil
}

// Retract убирает оптимистичную запись, если транспорт отказался её отправлять
func (s *MessageStore) Retract(tempID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.ID != tempID {
			continue
		}
		if !m.Pending {
			return ErrNotPending
		}
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		delete(s.ids, tempID)
		return nil
	}
	return ErrNotPending
}

// ReconcileInbound превращает фрейм в сообщение и добавляет его в лог.
// seen отмечает сообщение, пришедшее, пока пользователь смотрит на комнату.
// Эхо собственных сообщений пропускается: их уже представляет оптимистичная запись.
func (s *MessageStore) ReconcileInbound(frame protocol.InboundFrame, seen bool) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With().Str(logging.FieldRoomID, s.roomID).Logger()

	if s.roomID == "" {
		logger.Debug().Msg("frame without open room ignored")
		return domain.Message{}, false
	}
	if frame.RoomID != "" && frame.RoomID.String() != s.roomID {
		logger.Debug().Str("frame_room_id", frame.RoomID.String()).Msg("frame for another room ignored")
		return domain.Message{}, false
	}

	if frame.SenderID.String() == s.currentUserID {
		// TODO: эхо может нести постоянный id или правки модерации, но связать его с tmp-записью нечем.
		// Нужно решение по протоколу: сервер должен возвращать client correlation id из исходящего фрейма.
		// По той же причине MergeLatestPage пропускает свои сообщения, пока в логе есть tmp-записи.
		return domain.Message{}, false
	}

	msg := s.fromFrame(frame)
	msg.Seen = seen
	if err := msg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("inbound frame rejected")
		return domain.Message{}, false
	}
	if !s.insertLocked(msg) {
		return domain.Message{}, false
	}
	return msg, true
}

// CurrentLog копия лога по возрастанию времени
func (s *MessageStore) CurrentLog() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Oldest самое старое подтверждённое сервером сообщение, граница для пагинации
func (s *MessageStore) Oldest() (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if !m.Pending && !domain.IsLocalID(m.ID) {
			return m, true
		}
	}
	return domain.Message{}, false
}

func (s *MessageStore) hasPendingLocked() bool {
	for _, m := range s.messages {
		if m.Pending {
			return true
		}
	}
	return false
}

func (s *MessageStore) fromFrame(frame protocol.InboundFrame) domain.Message {
	msg := domain.Message{
		ID:        frame.ID.String(),
		RoomID:    s.roomID,
		SenderID:  frame.SenderID.String(),
		Text:      frame.Message,
		Timestamp: frame.Timestamp.Time,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.ID == "" {
		// фреймы без id получают локальный, чтобы порядок и дедупликация оставались однозначными
		msg.ID = domain.LiveIDPrefix + uuid.NewString()
	}

	switch {
	case frame.File != "":
		msg.Attachment = protocol.InferAttachment(frame.File, frame.FileName)
	case protocol.IsAbsoluteHTTPURL(frame.Message):
		// совместимость: часть серверных фреймов кодирует вложение как голый текст
		msg.Attachment = protocol.InferAttachment(strings.TrimSpace(frame.Message), frame.FileName)
		msg.Text = ""
	}

	return msg
}

func (s *MessageStore) normalize(m domain.Message) domain.Message {
	if m.RoomID == "" {
		m.RoomID = s.roomID
	}
	return m
}

// insertLocked вставляет в отсортированную позицию, дубликаты по id пропускаются
func (s *MessageStore) insertLocked(m domain.Message) bool {
	if m.ID == "" {
		s.logger.Warn().Str(logging.FieldRoomID, s.roomID).Msg("message without id skipped")
		return false
	}
	if _, dup := s.ids[m.ID]; dup {
		return false
	}

	i := sort.Search(len(s.messages), func(i int) bool {
		return domain.Less(m, s.messages[i])
	})

	s.messages = append(s.messages, domain.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
	s.ids[m.ID] = struct{}{}
	return true
}

func (s *MessageStore) snapshotLocked() []domain.Message {
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
