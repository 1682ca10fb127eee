package database

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/marketchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomSummary строка списка комнат для одного пользователя
type RoomSummary struct {
	Room        models.Room
	Counterpart models.User
	LastMessage *models.Message
	Seen        bool
}

// LastActivity время последнего сообщения, а без сообщений время создания комнаты
func (s RoomSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.Room.CreatedAt
}

// GetOrCreateDirectRoom идемпотентно: для пары всегда одна и та же комната
func (d *Database) GetOrCreateDirectRoom(user1ID, user2ID uuid.UUID) (*models.Room, error) {
	if user1ID == user2ID {
		return nil, ErrSelfRoom
	}
	low, high := models.OrderedPair(user1ID, user2ID)

	var room models.Room
	err := d.db.First(&room, "user_low_id = ? AND user_high_id = ?", low, high).Error
	if err == nil {
		return &room, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// параллельный запрос мог создать комнату между чтением и вставкой
	room = models.Room{UserLowID: low, UserHighID: high}
	if err := d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&room).Error; err != nil {
		return nil, err
	}

	var stored models.Room
	if err := d.db.First(&stored, "user_low_id = ? AND user_high_id = ?", low, high).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (d *Database) GetRoom(id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := d.db.First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// IsRoomMember ErrRoomNotFound, если комнаты нет
func (d *Database) IsRoomMember(roomID, userID uuid.UUID) (bool, error) {
	room, err := d.GetRoom(roomID)
	if err != nil {
		return false, err
	}
	return room.HasMember(userID), nil
}

// GetUserRooms комнаты пользователя, самые активные первыми
func (d *Database) GetUserRooms(userID uuid.UUID) ([]RoomSummary, error) {
	var rooms []models.Room
	err := d.db.
		Preload("UserLow").
		Preload("UserHigh").
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		s := RoomSummary{Room: room, Counterpart: room.UserLow}
		if room.UserLowID == userID {
			s.Counterpart = room.UserHigh
		}

		var last []models.Message
		if err := d.db.Where("room_id = ?", room.ID).Order("created_at DESC, id DESC").Limit(1).Find(&last).Error; err != nil {
			return nil, err
		}
		if len(last) > 0 {
			s.LastMessage = &last[0]
		}

		readAt, err := d.LastReadAt(room.ID, userID)
		if err != nil {
			return nil, err
		}
		var unread int64
		if err := d.db.Model(&models.Message{}).
			Where("room_id = ? AND user_id <> ? AND created_at > ?", room.ID, userID, readAt).
			Count(&unread).Error; err != nil {
			return nil, err
		}
		s.Seen = unread == 0

		summaries = append(summaries, s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity().After(summaries[j].LastActivity())
	})
	return summaries, nil
}

// MarkRoomRead сдвигает отметку прочтения вперёд; более ранняя отметка игнорируется
func (d *Database) MarkRoomRead(roomID, userID uuid.UUID, at time.Time) error {
	read := models.RoomRead{RoomID: roomID, UserID: userID, LastReadAt: at.UTC()}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "room_reads.last_read_at < excluded.last_read_at"},
		}},
	}).Create(&read).Error
}

// LastReadAt нулевое время, если пользователь комнату ещё не открывал
func (d *Database) LastReadAt(roomID, userID uuid.UUID) (time.Time, error) {
	var reads []models.RoomRead
	if err := d.db.Where("room_id = ? AND user_id = ?", roomID, userID).Limit(1).Find(&reads).Error; err != nil {
		return time.Time{}, err
	}
	if len(reads) == 0 {
		return time.Time{}, nil
	}
	return reads[0].LastReadAt, nil
}
