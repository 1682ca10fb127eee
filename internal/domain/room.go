package domain

import (
	"time"
	"unicode/utf8"
)

const previewLimit = 50

// Room диалог текущего пользователя с одним собеседником
type Room struct {
	ID                 string
	CounterpartID      string
	DisplayName        string
	AvatarURL          string
	LastMessagePreview string
	LastActivityAt     time.Time
	Seen               bool
}

// Label имя для отображения и поиска
func (r Room) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.CounterpartID
}

// Preview обрезает текст последнего сообщения для списка комнат
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "..."
}

// PreviewOf текст превью для сообщения, у которого может не быть текста
func PreviewOf(m Message) string {
	if m.Text != "" {
		return Preview(m.Text)
	}
	if m.Attachment != nil {
		if m.Attachment.FileName != "" {
			return Preview(m.Attachment.FileName)
		}
		return "Attachment"
	}
	return ""
}
