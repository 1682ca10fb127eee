package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room диалог двух пользователей. Пара хранится упорядоченной, поэтому уникальный индекс
// гарантирует одну комнату на пару.
type Room struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserLowID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_pair"`
	UserHighID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_pair"`
	CreatedAt  time.Time

	UserLow  User `gorm:"foreignKey:UserLowID"`
	UserHigh User `gorm:"foreignKey:UserHighID"`
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// OrderedPair порядок участников, в котором пара хранится в таблице
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}

// HasMember участвует ли пользователь в диалоге
func (r Room) HasMember(userID uuid.UUID) bool {
	return r.UserLowID == userID || r.UserHighID == userID
}

// Counterpart второй участник диалога
func (r Room) Counterpart(userID uuid.UUID) uuid.UUID {
	if r.UserLowID == userID {
		return r.UserHighID
	}
	return r.UserLowID
}

// RoomRead до какого момента пользователь прочитал комнату
type RoomRead struct {
	RoomID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastReadAt time.Time
}
