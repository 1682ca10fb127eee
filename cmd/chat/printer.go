package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/messenger"
)

// printer печатает новые сообщения открытой комнаты по мере прихода обновлений
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	m       *messenger.Messenger
	printed map[string]bool
	roomID  string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: make(map[string]bool)}
}

func (p *printer) attach(m *messenger.Messenger) {
	p.mu.Lock()
	p.m = m
	p.mu.Unlock()
}

func (p *printer) onUpdate(u messenger.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		return
	}

	switch u.Kind {
	case messenger.UpdateLog:
		if u.Err != nil {
			fmt.Fprintf(p.out, "! %v\n", u.Err)
		}
		p.printNewLocked()
	case messenger.UpdateConnection:
		if u.Err != nil {
			fmt.Fprintf(p.out, "! connection: %v\n", u.Err)
		}
	case messenger.UpdateRooms:
		if n := p.m.UnreadCount(); n > 0 {
			fmt.Fprintf(p.out, "* %d unread conversation(s)\n", n)
		}
	}
}

// printNewLocked печатает сообщения, которых ещё не было на экране
func (p *printer) printNewLocked() {
	if roomID := p.m.RoomID(); roomID != p.roomID {
		p.roomID = roomID
		p.printed = make(map[string]bool)
	}

	for _, msg := range p.m.Log() {
		if p.printed[msg.ID] {
			continue
		}
		p.printed[msg.ID] = true
		fmt.Fprintln(p.out, p.format(msg))
	}
}

func (p *printer) format(msg domain.Message) string {
	who := msg.SenderID
	if msg.IsOwn(p.m.UserID()) {
		who = "me"
	}

	line := fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Local().Format("15:04"), who, msg.Text)
	if msg.Attachment != nil {
		kind := "file"
		switch {
		case msg.Attachment.IsImage():
			kind = "image"
		case msg.Attachment.IsVideo():
			kind = "video"
		}
		line += fmt.Sprintf(" <%s %s %s>", kind, msg.Attachment.FileName, msg.Attachment.URL)
	}
	if msg.Pending {
		line += " (sending)"
	}
	return line
}

func (p *printer) reset() {
	p.mu.Lock()
	p.printed = make(map[string]bool)
	p.roomID = ""
	p.mu.Unlock()
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}
