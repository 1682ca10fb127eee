package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/marketchat/internal/models"
	"gorm.io/gorm/clause"
)

// EnsureUser создаёт запись пользователя при первом обращении.
// Непустое имя обновляет сохранённое.
func (d *Database) EnsureUser(id uuid.UUID, displayName string) error {
	user := models.User{ID: id, DisplayName: displayName, LastSeenAt: time.Now().UTC()}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
	}
	if displayName != "" {
		onConflict.DoUpdates = clause.AssignmentColumns([]string{"last_seen_at", "display_name"})
	}
	return d.db.Clauses(onConflict).Create(&user).Error
}

func (d *Database) GetUser(id uuid.UUID) (*models.User, error) {
	user := models.User{}
	if err := d.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) UpdateProfile(id uuid.UUID, displayName, avatarURL string) error {
	return d.db.Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{"display_name": displayName, "avatar_url": avatarURL}).Error
}
