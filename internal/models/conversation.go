package models

import (
	"github.com/google/uuid"
	"time"
)

// Conversation — приватная сессия пользователя с ассистентом. Видна
// только владельцу; удаляется вместе со своей историей.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Owner     string    `gorm:"size:64;not null;index"`
	Title     string    `gorm:"not null"`
	CreatedAt time.Time
}
