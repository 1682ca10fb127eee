package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID    uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_room_created"`
	UserID    uuid.UUID `gorm:"type:uuid;not null"`
	Content   string
	FileURL   string
	FileName  string
	CreatedAt time.Time `gorm:"index:idx_messages_room_created"`

	// Связи
	User User `gorm:"foreignKey:UserID"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}
