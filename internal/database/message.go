package database

import (
	"errors"

	"github.com/google/uuid"
	"github.com/thereayou/marketchat/internal/models"
	"gorm.io/gorm"
)

func (d *Database) SaveMessage(message *models.Message) error {
	return d.db.Create(message).Error
}

// GetRoomMessages страница сообщений комнаты, старые первыми.
// beforeID ограничивает выборку сообщениями строго старше указанного.
func (d *Database) GetRoomMessages(roomID uuid.UUID, limit int, beforeID *uuid.UUID) ([]models.Message, error) {
	var messages []models.Message

	query := d.db.Where("room_id = ?", roomID)

	if beforeID != nil {
		var beforeMsg models.Message
		if err := d.db.First(&beforeMsg, "id = ? AND room_id = ?", *beforeID, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			beforeMsg.CreatedAt, beforeMsg.CreatedAt, beforeMsg.ID)
	}

	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Разворачиваем порядок, чтобы старые сообщения были первыми
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
