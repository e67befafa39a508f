package models

import (
	"time"
)

// User — учётная запись. Username служит идентификатором автора во всех
// сообщениях; ядро не интерпретирует остальные поля.
type User struct {
	Username     string `gorm:"primaryKey;size:64"`
	Nickname     string `gorm:"not null"`
	Role         string `gorm:"not null;check:role IN ('student','teacher')"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}
