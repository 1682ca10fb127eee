package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User зеркало пользователя маркетплейса: учётными записями владеет внешний сервис
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayName string
	AvatarURL   string
	LastSeenAt  time.Time
	CreatedAt   time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
