package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/logging"
)

var ErrFetch = errors.New("history fetch failed")

// Fetcher источник страниц истории. before пустой для самой свежей страницы.
type Fetcher interface {
	RoomHistory(ctx context.Context, roomID, before string) ([]domain.Message, error)
}

// Page страница истории вместе с комнатой, для которой её запрашивали
type Page struct {
	RoomID   string
	Messages []domain.Message
}

type roomState struct {
	hasMore bool
	loading bool
}

// Paginator следит за тем, есть ли ещё более старые сообщения и не идёт ли уже загрузка
type Paginator struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*roomState
}

func New(fetcher Fetcher, logger zerolog.Logger) *Paginator {
	return &Paginator{
		fetcher: fetcher,
		logger:  logging.Component(logger, "history"),
		rooms:   make(map[string]*roomState),
	}
}

// FetchInitial загружает самую свежую страницу и сбрасывает состояние комнаты
func (p *Paginator) FetchInitial(ctx context.Context, roomID string) (Page, error) {
	p.mu.Lock()
	st := &roomState{hasMore: true, loading: true}
	p.rooms[roomID] = st
	p.mu.Unlock()

	msgs, err := p.fetcher.RoomHistory(ctx, roomID, "")

	p.mu.Lock()
	st.loading = false
	if err == nil && len(msgs) == 0 {
		st.hasMore = false
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn().Err(err).Str(logging.FieldRoomID, roomID).Msg("initial history fetch failed")
		return Page{RoomID: roomID}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return Page{RoomID: roomID, Messages: msgs}, nil
}

// FetchOlderThan загружает страницу старше beforeID.
// ok=false означает, что запрос не выполнялся: история исчерпана или загрузка уже идёт.
func (p *Paginator) FetchOlderThan(ctx context.Context, roomID, beforeID string) (Page, bool, error) {
	p.mu.Lock()
	st, found := p.rooms[roomID]
	if !found {
		st = &roomState{hasMore: true}
		p.rooms[roomID] = st
	}
	if !st.hasMore || st.loading {
		p.mu.Unlock()
		return Page{RoomID: roomID}, false, nil
	}
	st.loading = true
	p.mu.Unlock()

	msgs, err := p.fetcher.RoomHistory(ctx, roomID, beforeID)

	p.mu.Lock()
	st.loading = false
	if err == nil && len(msgs) == 0 {
		st.hasMore = false
	}
	p.mu.Unlock()

	logger := p.logger.With().Str(logging.FieldRoomID, roomID).Str("before", beforeID).Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("older history fetch failed")
		return Page{RoomID: roomID}, true, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	logger.Debug().Int("count", len(msgs)).Msg("older page fetched")
	return Page{RoomID: roomID, Messages: msgs}, true, nil
}

// HasMore false только после пустой страницы
func (p *Paginator) HasMore(roomID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.rooms[roomID]
	return !ok || st.hasMore
}

func (p *Paginator) Loading(roomID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.rooms[roomID]
	return ok && st.loading
}

// Forget удаляет состояние комнаты, которую закрыли
func (p *Paginator) Forget(roomID string) {
	p.mu.Lock()
	delete(p.rooms, roomID)
	p.mu.Unlock()
}
