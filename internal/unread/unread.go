package unread

import "github.com/thereayou/marketchat/internal/domain"

// GlobalUnreadCount число комнат с непрочитанными сообщениями
func GlobalUnreadCount(rooms []domain.Room) int {
	n := 0
	for _, r := range rooms {
		if !r.Seen {
			n++
		}
	}
	return n
}

// FirstUnreadIndex позиция разделителя "новые сообщения"; -1, если непрочитанных чужих нет
func FirstUnreadIndex(messages []domain.Message, currentUserID string) int {
	for i, m := range messages {
		if !m.Seen && !m.IsOwn(currentUserID) {
			return i
		}
	}
	return -1
}
