package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/thereayou/marketchat/internal/attachment"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/messenger"
)

const help = `commands:
  /rooms [query]    list conversations, optionally filtered by name
  /open <user_id>   open (or start) the conversation with a user
  /room <room_id>   open a conversation by room id
  /older            load older messages
  /attach <path>    attach a file to the next message
  /detach           drop the attached file
  /unread           number of unread conversations
  /quit             exit
any other line is sent as a message
`

// shell построчный интерфейс поверх Messenger
type shell struct {
	m   *messenger.Messenger
	out *printer
	in  io.Reader
}

func newShell(m *messenger.Messenger, out *printer, in io.Reader) *shell {
	return &shell{m: m, out: out, in: in}
}

func (s *shell) run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
			return
		}
		scanErr <- io.EOF
	}()

	s.out.printf("%s", help)
	s.printRooms("")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line := <-lines:
			if err := s.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				s.out.printf("! %v\n", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func (s *shell) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.m.Send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "rooms":
		s.printRooms(arg)
		return nil

	case "open":
		if arg == "" {
			return errors.New("usage: /open <user_id>")
		}
		s.out.reset()
		roomID, err := s.m.OpenConversation(ctx, arg)
		if roomID != "" {
			s.out.printf("-- room %s\n", roomID)
			s.out.onUpdate(messenger.Update{Kind: messenger.UpdateLog, RoomID: roomID})
		}
		return err

	case "room":
		if arg == "" {
			return errors.New("usage: /room <room_id>")
		}
		s.out.reset()
		err := s.m.SelectRoom(ctx, arg)
		s.out.onUpdate(messenger.Update{Kind: messenger.UpdateLog, RoomID: arg})
		return err

	case "older":
		n, err := s.m.LoadOlder(ctx)
		if err != nil {
			return err
		}
		if n == 0 && !s.m.HasMore() {
			s.out.printf("-- no older messages\n")
			return nil
		}
		// старые сообщения печатаются заново целиком, чтобы сохранить порядок
		s.out.reset()
		s.out.onUpdate(messenger.Update{Kind: messenger.UpdateLog, RoomID: s.m.RoomID()})
		return nil

	case "attach":
		f, err := attachment.OpenFile(arg, s.m.AttachmentPolicy().MaxSize)
		if err != nil {
			return err
		}
		pending, err := s.m.SelectAttachment(f)
		if err != nil {
			return err
		}
		s.out.printf("-- attached %s (%s), send a message to upload\n", pending.File.Name, pending.MimeType)
		return nil

	case "detach":
		s.m.ClearAttachment()
		return nil

	case "unread":
		s.out.printf("-- %d unread conversation(s)\n", s.m.UnreadCount())
		return nil

	case "quit", "exit":
		return errQuit

	default:
		s.out.printf("%s", help)
		return nil
	}
}

func (s *shell) printRooms(query string) {
	rooms := s.m.Filter(query)
	if len(rooms) == 0 {
		s.out.printf("-- no conversations\n")
		return
	}
	for _, r := range rooms {
		s.out.printf("%s %-20s %s  (%s)\n", seenMark(r), label(r), r.LastMessagePreview, r.ID)
	}
}

func seenMark(r domain.Room) string {
	if r.Seen {
		return " "
	}
	return "*"
}

func label(r domain.Room) string {
	if l := r.Label(); l != "" {
		return l
	}
	return r.CounterpartID
}
