package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/protocol"
)

// State состояние сессии
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FrameHandler вызывается один раз на каждый входящий фрейм, в порядке получения
type FrameHandler func(frame protocol.InboundFrame)

// CloseHandler получает nil при штатном Close и ошибку при обрыве
type CloseHandler func(err error)

// Session одно живое соединение с комнатой
type Session struct {
	roomID string
	cfg    Config
	logger zerolog.Logger

	conn  *websocket.Conn
	state atomic.Int32
	send  chan []byte
	done  chan struct{}

	mu            sync.Mutex
	handlers      []FrameHandler
	closeHandlers []CloseHandler
	closeErr      error
	finishOnce    sync.Once
}

func newSession(roomID string, cfg Config, logger zerolog.Logger) *Session {
	s := &Session{
		roomID: roomID,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) RoomID() string {
	return s.roomID
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done закрывается, когда сессия переходит в Closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err причина закрытия; nil, если сессию закрыли штатно
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// OnFrame регистрирует обработчик входящих фреймов
func (s *Session) OnFrame(h FrameHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// OnClose регистрирует обработчик закрытия; для уже закрытой сессии вызывается сразу
func (s *Session) OnClose(h CloseHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	if s.State() == StateClosed {
		err := s.closeErr
		s.mu.Unlock()
		h(err)
		return
	}
	s.closeHandlers = append(s.closeHandlers, h)
	s.mu.Unlock()
}

// Send ставит фрейм в очередь записи. Ошибка возвращается синхронно.
func (s *Session) Send(frame protocol.OutboundFrame) error {
	if s.State() != StateOpen {
		return ErrNotConnected
	}
	if frame.Empty() {
		return ErrEmptyFrame
	}
	if frame.Type == "" {
		frame.Type = protocol.TypeChatMessage
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}

	select {
	case s.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close освобождает соединение; повторные вызовы ничего не делают
func (s *Session) Close() error {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) &&
		!s.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		return nil
	}

	if s.conn != nil {
		deadline := time.Now().Add(s.cfg.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug().Err(err).Msg("close frame not sent")
		}
	}

	s.finish(nil)
	return nil
}

// abort используется, когда подключение так и не состоялось
func (s *Session) abort() {
	s.state.Store(int32(StateClosing))
	s.finish(nil)
}

func (s *Session) start(conn *websocket.Conn) {
	s.conn = conn
	s.state.Store(int32(StateOpen))

	go s.writePump()
	go s.readPump()
}

func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateClosed))
		s.closeErr = err
		handlers := s.closeHandlers
		s.closeHandlers = nil
		s.mu.Unlock()

		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}

		if err != nil {
			s.logger.Warn().Err(err).Msg("session closed")
		} else {
			s.logger.Debug().Msg("session closed")
		}

		for _, h := range handlers {
			h(err)
		}
	})
}

// readPump читает фреймы от сервера
func (s *Session) readPump() {
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})
	s.conn.SetPingHandler(func(appData string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.cfg.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() == StateClosing || s.State() == StateClosed {
				s.finish(nil)
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.finish(fmt.Errorf("%w: closed by server: %v", ErrConnection, err))
				return
			}
			s.finish(fmt.Errorf("%w: %v", ErrConnection, err))
			return
		}

		frame, err := protocol.ParseInbound(data)
		if err != nil {
			// один битый фрейм не должен ломать остальные
			s.logger.Warn().Err(err).Int("size", len(data)).Msg("dropping inbound frame")
			continue
		}

		s.dispatch(frame)
	}
}

// writePump единственный писатель в соединение
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.finish(fmt.Errorf("%w: write: %v", ErrConnection, err))
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.finish(fmt.Errorf("%w: ping: %v", ErrConnection, err))
				return
			}
		}
	}
}

func (s *Session) dispatch(frame protocol.InboundFrame) {
	s.mu.Lock()
	handlers := make([]FrameHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		s.safeCall(h, frame)
	}
}

func (s *Session) safeCall(h FrameHandler, frame protocol.InboundFrame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str(logging.FieldMessageID, frame.ID.String()).
				Msg("frame handler panicked")
		}
	}()
	h(frame)
}
