package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mathchat/internal/models"
)

// Connect открывает БД и прогоняет миграции. Непустой postgres DSN имеет
// приоритет; иначе используется локальный SQLite-файл.
func (d *Database) Connect(databaseURL, sqlitePath string) error {
	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(sqlitePath + "?_busy_timeout=5000")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
	); err != nil {
		return err
	}

	d.db = db
	return nil
}
