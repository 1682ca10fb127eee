package domain

import (
	"strings"
	"time"
)

const (
	// TempIDPrefix помечает id оптимистичных сообщений до подтверждения сервером
	TempIDPrefix = "tmp-"

	// LiveIDPrefix локальный id живого фрейма, пришедшего без id
	LiveIDPrefix = "live-"
)

type Attachment struct {
	URL      string
	MimeType string
	FileName string
}

func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

func (a Attachment) IsVideo() bool {
	return strings.HasPrefix(a.MimeType, "video/")
}

// Message сообщение открытой комнаты в том виде, в котором его видит клиент
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	Text       string
	Attachment *Attachment
	Timestamp  time.Time

	// Seen прочитано ли сообщение получателем
	Seen bool

	// Pending оптимистичная запись с временным id
	Pending bool
}

// IsOwn вычисляется, а не хранится
func (m Message) IsOwn(currentUserID string) bool {
	return m.SenderID == currentUserID
}

// Validate проверяет, что у сообщения есть текст или вложение
func (m Message) Validate() error {
	if m.RoomID == "" || m.SenderID == "" {
		return ErrInvalidMessage
	}
	if strings.TrimSpace(m.Text) == "" && m.Attachment == nil {
		return ErrEmptyMessage
	}
	return nil
}

// Less задаёт порядок лога: по времени, при равенстве по id
func Less(a, b Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// IsLocalID id, которого нет на сервере, и который нельзя передавать как границу страницы
func IsLocalID(id string) bool {
	return IsTempID(id) || strings.HasPrefix(id, LiveIDPrefix)
}

// Draft исходящее сообщение до отправки
type Draft struct {
	Text       string
	Attachment *Attachment
}

func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && d.Attachment == nil
}
