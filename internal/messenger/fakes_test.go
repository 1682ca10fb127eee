package messenger

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/thereayou/marketchat/internal/attachment"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/protocol"
	"github.com/thereayou/marketchat/internal/transport"
)

type fakeBackend struct {
	mu         sync.Mutex
	rooms      []domain.Room
	pages      map[string][]domain.Message
	historyErr map[string]error
	blocks     map[string]chan struct{}
	fetched    chan string
	seen       []string
	read       map[string]bool
	calls      []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages:      make(map[string][]domain.Message),
		historyErr: make(map[string]error),
		blocks:     make(map[string]chan struct{}),
		fetched:    make(chan string, 16),
		read:       make(map[string]bool),
	}
}

func pageKey(roomID, before string) string {
	return roomID + "|" + before
}

func (b *fakeBackend) MyRooms(ctx context.Context) ([]domain.Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Room, len(b.rooms))
	copy(out, b.rooms)
	return out, nil
}

func (b *fakeBackend) GetOrCreateRoom(ctx context.Context, counterpartID string) (string, error) {
	return "room-" + counterpartID, nil
}

func (b *fakeBackend) MarkSeen(ctx context.Context, roomID string) error {
	b.mu.Lock()
	b.seen = append(b.seen, roomID)
	b.read[roomID] = true
	b.calls = append(b.calls, "seen "+roomID)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) RoomHistory(ctx context.Context, roomID, before string) ([]domain.Message, error) {
	key := pageKey(roomID, before)
	b.mu.Lock()
	block := b.blocks[key]
	page := b.pages[key]
	err := b.historyErr[key]
	read := b.read[roomID]
	b.calls = append(b.calls, "history "+key)
	b.mu.Unlock()

	b.fetched <- key
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(page))
	copy(out, page)
	// как и сервер, отдаём чужие сообщения прочитанными после подтверждения
	for i := range out {
		if read && out[i].SenderID != me {
			out[i].Seen = true
		}
	}
	return out, nil
}

func (b *fakeBackend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

type fakeSession struct {
	roomID  string
	state   atomic.Int32
	sendErr error

	mu       sync.Mutex
	sent     []protocol.OutboundFrame
	onClose  []transport.CloseHandler
	handlers []transport.FrameHandler
}

func (s *fakeSession) Send(frame protocol.OutboundFrame) error {
	if s.State() != transport.StateOpen {
		return transport.ErrNotConnected
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	s.sent = append(s.sent, frame)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Close() error {
	s.finish(nil)
	return nil
}

func (s *fakeSession) State() transport.State {
	return transport.State(s.state.Load())
}

func (s *fakeSession) OnClose(h transport.CloseHandler) {
	s.mu.Lock()
	if s.State() == transport.StateClosed {
		s.mu.Unlock()
		h(nil)
		return
	}
	s.onClose = append(s.onClose, h)
	s.mu.Unlock()
}

// drop имитирует обрыв соединения сервером
func (s *fakeSession) drop(err error) {
	s.finish(err)
}

func (s *fakeSession) finish(err error) {
	s.mu.Lock()
	if s.State() == transport.StateClosed {
		s.mu.Unlock()
		return
	}
	s.state.Store(int32(transport.StateClosed))
	hs := s.onClose
	s.onClose = nil
	s.mu.Unlock()
	for _, h := range hs {
		h(err)
	}
}

func (s *fakeSession) deliver(frame protocol.InboundFrame) {
	s.mu.Lock()
	hs := append([]transport.FrameHandler(nil), s.handlers...)
	s.mu.Unlock()
	for _, h := range hs {
		h(frame)
	}
}

func (s *fakeSession) frames() []protocol.OutboundFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.OutboundFrame(nil), s.sent...)
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	errs     []error
	tokens   []string
}

func (d *fakeDialer) Open(ctx context.Context, roomID, token string, handlers ...transport.FrameHandler) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &fakeSession{roomID: roomID, handlers: handlers}
	s.state.Store(int32(transport.StateOpen))
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) opened() []*fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeSession(nil), d.sessions...)
}

func (d *fakeDialer) last() *fakeSession {
	s := d.opened()
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

func (d *fakeDialer) openedFor(roomID string) int {
	n := 0
	for _, s := range d.opened() {
		if s.roomID == roomID {
			n++
		}
	}
	return n
}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (u *fakeUploader) Upload(ctx context.Context, name, contentType string, r io.Reader, size int64) (attachment.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return attachment.UploadResult{}, u.err
	}
	return attachment.UploadResult{URL: fmt.Sprintf("https://cdn.test/%d/%s", u.calls, name), FileName: name}, nil
}
