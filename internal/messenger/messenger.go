package messenger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/attachment"
	"github.com/thereayou/marketchat/internal/config"
	"github.com/thereayou/marketchat/internal/directory"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/history"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/protocol"
	"github.com/thereayou/marketchat/internal/store"
	"github.com/thereayou/marketchat/internal/transport"
	"github.com/thereayou/marketchat/internal/unread"
)

var (
	ErrSuperseded = errors.New("room selection superseded")
	ErrClosed     = errors.New("messenger is closed")
)

// UpdateKind что изменилось
type UpdateKind int

const (
	UpdateRooms UpdateKind = iota
	UpdateLog
	UpdateConnection
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateRooms:
		return "rooms"
	case UpdateLog:
		return "log"
	case UpdateConnection:
		return "connection"
	default:
		return fmt.Sprintf("update(%d)", int(k))
	}
}

// Update уведомление для слоя отображения
type Update struct {
	Kind   UpdateKind
	RoomID string
	Err    error
}

// Backend REST-часть протокола
type Backend interface {
	directory.Client
	history.Fetcher
}

type Options struct {
	UserID           string
	Token            string
	PollInterval     time.Duration
	AttachmentPolicy attachment.Policy
	Reconnect        config.ReconnectConfig
	OnUpdate         func(Update)
}

// Messenger контейнер состояния одной пользовательской сессии.
// Владеет списком комнат, логом открытой комнаты и не более чем одним живым соединением.
type Messenger struct {
	userID    string
	token     string
	reconnect config.ReconnectConfig
	onUpdate  func(Update)

	backend     Backend
	dialer      Dialer
	directory   *directory.Directory
	store       *store.MessageStore
	history     *history.Paginator
	attachments *attachment.Pipeline
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	gen        uint64
	roomID     string
	session    Session
	openCancel context.CancelFunc
	focused    bool
	started    bool
	closed     bool
}

func New(opts Options, backend Backend, dialer Dialer, uploader attachment.Uploader, logger zerolog.Logger) *Messenger {
	logger = logging.Component(logger, "messenger").With().Str(logging.FieldUserID, opts.UserID).Logger()
	if opts.AttachmentPolicy.MaxSize == 0 && !opts.AttachmentPolicy.ImageOnly {
		opts.AttachmentPolicy = attachment.MessagePolicy(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Messenger{
		userID:      opts.UserID,
		token:       opts.Token,
		reconnect:   opts.Reconnect,
		onUpdate:    opts.OnUpdate,
		backend:     backend,
		dialer:      dialer,
		directory:   directory.New(backend, opts.PollInterval, logger),
		store:       store.New(opts.UserID, logger),
		history:     history.New(backend, logger),
		attachments: attachment.NewPipeline(opts.AttachmentPolicy, uploader, logger),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		focused:     true,
	}
	m.directory.OnChange(func([]domain.Room) {
		m.notify(Update{Kind: UpdateRooms})
	})
	return m
}

// Start первая загрузка списка комнат и запуск опроса
func (m *Messenger) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if _, err := m.directory.Refresh(ctx); err != nil {
		if errors.Is(err, domain.ErrAuth) {
			return err
		}
		m.logger.Warn().Err(err).Msg("initial room list failed")
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.directory.Run(m.ctx)
	}()
	return nil
}

// Close останавливает опрос и закрывает соединение. Повторный вызов ничего не делает.
func (m *Messenger) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.gen++
	sess := m.session
	m.session = nil
	if m.openCancel != nil {
		m.openCancel()
		m.openCancel = nil
	}
	m.mu.Unlock()

	m.cancel()
	if sess != nil {
		sess.Close()
	}
	m.wg.Wait()
	m.logger.Debug().Msg("messenger closed")
	return nil
}

// SelectRoom переключает открытую комнату.
// Предыдущая сессия закрывается до открытия новой, даже если она ещё подключается.
// Ошибка загрузки истории не мешает открыть сокет: лог остаётся пустым, ошибка возвращается.
func (m *Messenger) SelectRoom(ctx context.Context, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return store.ErrNoRoom
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	prev := m.session
	prevRoom := m.roomID
	m.session = nil
	if m.openCancel != nil {
		m.openCancel()
	}
	openCtx, cancel := context.WithCancel(ctx)
	m.openCancel = cancel
	m.roomID = roomID
	focused := m.focused
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	if prevRoom != "" && prevRoom != roomID {
		m.history.Forget(prevRoom)
	}

	logger := m.logger.With().Str(logging.FieldRoomID, roomID).Logger()

	m.store.Reset(roomID)
	m.notify(Update{Kind: UpdateLog, RoomID: roomID})

	var loadErr error
	page, err := m.history.FetchInitial(openCtx, roomID)
	if !m.current(gen) {
		return ErrSuperseded
	}
	if err != nil {
		loadErr = err
		page.Messages = nil
	}
	if _, err := m.store.LoadInitial(page.RoomID, page.Messages); err != nil {
		if errors.Is(err, store.ErrStaleRoom) {
			return ErrSuperseded
		}
		return err
	}
	m.notify(Update{Kind: UpdateLog, RoomID: roomID, Err: loadErr})

	// подтверждение прочтения только после загрузки, иначе сервер вернёт историю уже прочитанной
	if focused {
		m.directory.Focus(roomID)
		if err := m.directory.MarkSeen(openCtx, roomID); err != nil {
			logger.Warn().Err(err).Msg("read acknowledgement failed")
		}
	}

	sess, err := m.dialer.Open(openCtx, roomID, m.token, m.frameHandler(gen))
	if err != nil {
		if !m.current(gen) {
			return ErrSuperseded
		}
		logger.Warn().Err(err).Msg("room socket failed to open")
		m.notify(Update{Kind: UpdateConnection, RoomID: roomID, Err: err})
		return errors.Join(err, loadErr)
	}

	if !m.install(gen, roomID, sess) {
		return ErrSuperseded
	}
	logger.Info().Msg("room opened")
	return loadErr
}

// OpenConversation находит или создаёт комнату с собеседником и открывает её
func (m *Messenger) OpenConversation(ctx context.Context, counterpartID string) (string, error) {
	roomID, err := m.directory.GetOrCreate(ctx, counterpartID)
	if err != nil {
		return "", err
	}
	return roomID, m.SelectRoom(ctx, roomID)
}

// LoadOlder подгружает страницу старше самого раннего сообщения в логе.
// Возвращает число добавленных сообщений; 0 без ошибки, если история исчерпана или загрузка уже идёт.
func (m *Messenger) LoadOlder(ctx context.Context) (int, error) {
	m.mu.Lock()
	roomID, gen := m.roomID, m.gen
	m.mu.Unlock()
	if roomID == "" {
		return 0, store.ErrNoRoom
	}

	oldest, ok := m.store.Oldest()
	if !ok {
		return 0, nil
	}

	page, fetched, err := m.history.FetchOlderThan(ctx, roomID, oldest.ID)
	if err != nil || !fetched {
		return 0, err
	}
	if !m.current(gen) {
		m.logger.Debug().Str(logging.FieldRoomID, page.RoomID).Msg("late history page dropped")
		return 0, ErrSuperseded
	}

	added, err := m.store.MergeOlderPage(page.RoomID, page.Messages)
	if err != nil {
		if errors.Is(err, store.ErrStaleRoom) {
			return 0, ErrSuperseded
		}
		return 0, err
	}
	if added > 0 {
		m.notify(Update{Kind: UpdateLog, RoomID: roomID})
	}
	return added, nil
}

// AttachmentPolicy ограничения, с которыми проверяется выбранный файл
func (m *Messenger) AttachmentPolicy() attachment.Policy {
	return m.attachments.Policy()
}

// SelectAttachment выбирает файл для следующего сообщения
func (m *Messenger) SelectAttachment(f attachment.File) (attachment.Pending, error) {
	return m.attachments.Select(f)
}

func (m *Messenger) ClearAttachment() {
	m.attachments.Clear()
}

func (m *Messenger) AttachmentPreview() string {
	return m.attachments.Preview()
}

func (m *Messenger) PendingAttachment() (attachment.Pending, bool) {
	return m.attachments.Pending()
}

// Send отправляет текст и выбранный файл одним фреймом.
// Отправка всё или ничего: при любой ошибке введённые данные остаются для повтора.
func (m *Messenger) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	sess, roomID := m.session, m.roomID
	m.mu.Unlock()

	if sess == nil || sess.State() != transport.StateOpen {
		return transport.ErrNotConnected
	}

	_, hasFile := m.attachments.Pending()
	if strings.TrimSpace(text) == "" && !hasFile {
		return domain.ErrEmptyMessage
	}

	draft := domain.Draft{Text: text}
	if hasFile {
		att, err := m.attachments.Upload(ctx)
		if err != nil {
			return err
		}
		draft.Attachment = &att
	}

	tempID, err := m.store.AppendOptimistic(draft)
	if err != nil {
		return err
	}

	frame := protocol.NewChatFrame(text, "", "")
	if draft.Attachment != nil {
		frame = protocol.NewChatFrame(text, draft.Attachment.URL, draft.Attachment.FileName)
	}

	if err := sess.Send(frame); err != nil {
		if rerr := m.store.Retract(tempID); rerr != nil {
			m.logger.Warn().Err(rerr).Str(logging.FieldMessageID, tempID).Msg("optimistic entry not retracted")
		}
		m.notify(Update{Kind: UpdateLog, RoomID: roomID, Err: err})
		return err
	}

	m.attachments.Clear()
	m.directory.ApplyMessage(roomID, domain.Message{
		ID:         tempID,
		RoomID:     roomID,
		SenderID:   m.userID,
		Text:       text,
		Attachment: draft.Attachment,
		Timestamp:  time.Now(),
	}, false)
	m.notify(Update{Kind: UpdateLog, RoomID: roomID})
	return nil
}

// SetFocused сообщает, видит ли пользователь открытую комнату.
// Возврат фокуса подтверждает прочтение.
func (m *Messenger) SetFocused(focused bool) {
	m.mu.Lock()
	m.focused = focused
	roomID := m.roomID
	m.mu.Unlock()

	if !focused {
		m.directory.Focus("")
		return
	}
	if roomID == "" {
		return
	}
	m.directory.Focus(roomID)
	if err := m.directory.MarkSeen(m.ctx, roomID); err != nil {
		m.logger.Warn().Err(err).Str(logging.FieldRoomID, roomID).Msg("read acknowledgement failed")
	}
}

// Live открыта ли сессия текущей комнаты
func (m *Messenger) Live() bool {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	return sess != nil && sess.State() == transport.StateOpen
}

func (m *Messenger) RoomID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

func (m *Messenger) UserID() string {
	return m.userID
}

func (m *Messenger) Rooms() []domain.Room {
	return m.directory.Rooms()
}

func (m *Messenger) Filter(query string) []domain.Room {
	return m.directory.Filter(query)
}

func (m *Messenger) RefreshRooms(ctx context.Context) ([]domain.Room, error) {
	return m.directory.Refresh(ctx)
}

func (m *Messenger) Log() []domain.Message {
	return m.store.CurrentLog()
}

func (m *Messenger) UnreadCount() int {
	return unread.GlobalUnreadCount(m.directory.Rooms())
}

func (m *Messenger) FirstUnreadIndex() int {
	return unread.FirstUnreadIndex(m.store.CurrentLog(), m.userID)
}

func (m *Messenger) HasMore() bool {
	return m.history.HasMore(m.RoomID())
}

func (m *Messenger) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.gen == gen
}

// install делает сессию текущей, если за время подключения комнату не сменили
func (m *Messenger) install(gen uint64, roomID string, sess Session) bool {
	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		sess.Close()
		return false
	}
	m.session = sess
	m.mu.Unlock()

	sess.OnClose(m.closeHandler(gen, roomID, sess))
	m.notify(Update{Kind: UpdateConnection, RoomID: roomID})
	return true
}

func (m *Messenger) frameHandler(gen uint64) transport.FrameHandler {
	return func(frame protocol.InboundFrame) {
		if !m.current(gen) {
			return
		}
		m.mu.Lock()
		focused := m.focused
		m.mu.Unlock()

		msg, ok := m.store.ReconcileInbound(frame, focused)
		if !ok {
			return
		}

		m.directory.ApplyMessage(msg.RoomID, msg, !focused)
		m.notify(Update{Kind: UpdateLog, RoomID: msg.RoomID})
	}
}

func (m *Messenger) closeHandler(gen uint64, roomID string, sess Session) transport.CloseHandler {
	return func(err error) {
		m.mu.Lock()
		if m.session == sess {
			m.session = nil
		}
		stillSelected := !m.closed && m.gen == gen
		m.mu.Unlock()

		if !stillSelected {
			return
		}
		m.notify(Update{Kind: UpdateConnection, RoomID: roomID, Err: err})

		if err != nil && m.reconnect.Enabled {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.reconnectLoop(gen, roomID)
			}()
		}
	}
}
