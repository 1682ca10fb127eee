package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrSelfRoom        = errors.New("cannot open a room with yourself")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// DB нужен тестам и миграциям
func (d *Database) DB() *gorm.DB {
	return d.db
}

// WithContext копия с контекстом запроса для всех операций
func (d *Database) WithContext(ctx context.Context) *Database {
	return &Database{db: d.db.WithContext(ctx)}
}
