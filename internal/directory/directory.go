package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/logging"
)

const DefaultPollInterval = 10 * time.Second

var ErrEmptyCounterpart = errors.New("counterpart id is required")

// Client серверная часть списка комнат
type Client interface {
	MyRooms(ctx context.Context) ([]domain.Room, error)
	GetOrCreateRoom(ctx context.Context, counterpartID string) (string, error)
	MarkSeen(ctx context.Context, roomID string) error
}

// Directory владеет списком комнат текущего пользователя
type Directory struct {
	client       Client
	logger       zerolog.Logger
	pollInterval time.Duration

	mu            sync.RWMutex
	rooms         []domain.Room
	byCounterpart map[string]string
	focused       string
	onChange      func([]domain.Room)

	// rev растёт при каждой локальной правке списка
	rev uint64
}

func New(client Client, pollInterval time.Duration, logger zerolog.Logger) *Directory {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Directory{
		client:        client,
		logger:        logging.Component(logger, "directory"),
		pollInterval:  pollInterval,
		byCounterpart: make(map[string]string),
	}
}

// OnChange вызывается после каждого изменения списка с его копией
func (d *Directory) OnChange(fn func([]domain.Room)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Refresh заменяет список ответом сервера.
// Ответ, запрошенный до локальной правки, отбрасывается: он её уже не отражает.
func (d *Directory) Refresh(ctx context.Context) ([]domain.Room, error) {
	d.mu.RLock()
	rev := d.rev
	d.mu.RUnlock()

	rooms, err := d.client.MyRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh rooms: %w", err)
	}

	d.mu.Lock()
	if d.rev != rev {
		out := d.snapshotLocked()
		d.mu.Unlock()
		d.logger.Debug().Msg("stale room list dropped")
		return out, nil
	}
	index := make(map[string]string, len(rooms))
	for i := range rooms {
		if rooms[i].ID == d.focused {
			// открытая комната прочитана, даже если сервер ещё не знает об этом
			rooms[i].Seen = true
		}
		if rooms[i].CounterpartID != "" {
			index[rooms[i].CounterpartID] = rooms[i].ID
		}
	}
	// get-or-create мог узнать о комнате раньше, чем она попала в список
	for cp, id := range d.byCounterpart {
		if _, ok := index[cp]; !ok {
			index[cp] = id
		}
	}
	sortByActivity(rooms)
	d.rooms = rooms
	d.byCounterpart = index
	out := d.snapshotLocked()
	d.mu.Unlock()

	d.notify(out)
	return out, nil
}

// GetOrCreate возвращает комнату с собеседником, создавая её при необходимости.
// Работает и до первого Refresh.
func (d *Directory) GetOrCreate(ctx context.Context, counterpartID string) (string, error) {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return "", ErrEmptyCounterpart
	}

	d.mu.RLock()
	roomID, ok := d.byCounterpart[counterpartID]
	d.mu.RUnlock()
	if ok {
		return roomID, nil
	}

	roomID, err := d.client.GetOrCreateRoom(ctx, counterpartID)
	if err != nil {
		return "", fmt.Errorf("get or create room: %w", err)
	}

	d.mu.Lock()
	if existing, ok := d.byCounterpart[counterpartID]; ok {
		roomID = existing
	} else {
		d.byCounterpart[counterpartID] = roomID
	}
	d.mu.Unlock()

	d.logger.Debug().Str(logging.FieldRoomID, roomID).Str("counterpart_id", counterpartID).Msg("room resolved")
	return roomID, nil
}

// Filter поиск без учёта регистра по имени, а без имени по id собеседника
func (d *Directory) Filter(query string) []domain.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return d.snapshotLocked()
	}

	var out []domain.Room
	for _, r := range d.rooms {
		if strings.Contains(strings.ToLower(r.Label()), q) {
			out = append(out, r)
		}
	}
	return out
}

// MarkSeen сразу помечает комнату прочитанной, затем сообщает серверу.
// Ошибка сервера возвращается, но локальный флаг не откатывается.
func (d *Directory) MarkSeen(ctx context.Context, roomID string) error {
	if d.setSeen(roomID, true) {
		d.notify(d.Rooms())
	}

	if err := d.client.MarkSeen(ctx, roomID); err != nil {
		d.logger.Warn().Err(err).Str(logging.FieldRoomID, roomID).Msg("mark seen failed")
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Focus отмечает комнату, открытую сейчас; пустой id снимает фокус
func (d *Directory) Focus(roomID string) {
	d.mu.Lock()
	d.focused = roomID
	d.mu.Unlock()
}

func (d *Directory) Focused() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.focused
}

// ApplyMessage обновляет превью и время активности после отправки или получения
func (d *Directory) ApplyMessage(roomID string, msg domain.Message, unread bool) {
	d.mu.Lock()
	changed := false
	for i := range d.rooms {
		if d.rooms[i].ID != roomID {
			continue
		}
		d.rooms[i].LastMessagePreview = domain.PreviewOf(msg)
		if msg.Timestamp.After(d.rooms[i].LastActivityAt) {
			d.rooms[i].LastActivityAt = msg.Timestamp
		}
		if unread {
			d.rooms[i].Seen = false
		}
		changed = true
		break
	}
	if changed {
		d.rev++
		sortByActivity(d.rooms)
	}
	out := d.snapshotLocked()
	d.mu.Unlock()

	if changed {
		d.notify(out)
	}
}

// Rooms копия списка, самые активные первыми
func (d *Directory) Rooms() []domain.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

// Run опрашивает сервер до отмены ctx
func (d *Directory) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug().Msg("room poller stopped")
			return
		case <-ticker.C:
			if _, err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
				d.logger.Warn().Err(err).Msg("room poll failed")
			}
		}
	}
}

func (d *Directory) setSeen(roomID string, seen bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			changed := d.rooms[i].Seen != seen
			d.rooms[i].Seen = seen
			if changed {
				d.rev++
			}
			return changed
		}
	}
	return false
}

func (d *Directory) notify(rooms []domain.Room) {
	d.mu.RLock()
	fn := d.onChange
	d.mu.RUnlock()
	if fn != nil {
		fn(rooms)
	}
}

func (d *Directory) snapshotLocked() []domain.Room {
	out := make([]domain.Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}

func sortByActivity(rooms []domain.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].LastActivityAt.After(rooms[j].LastActivityAt)
	})
}
