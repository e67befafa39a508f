package models

import (
	"github.com/google/uuid"
	"time"
)

// InviteCodeLength — длина кода приглашения (заглавные буквы и цифры).
const InviteCodeLength = 6

// Room — групповая комната. InviteCode неизменен после создания.
type Room struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title      string    `gorm:"not null"`
	InviteCode string    `gorm:"size:6;not null;uniqueIndex"`
	CreatedAt  time.Time
}

// RoomMember — членство пользователя в комнате. Пара ключей делает
// повторное вступление идемпотентным.
type RoomMember struct {
	RoomID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username string    `gorm:"size:64;primaryKey"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

func (RoomMember) TableName() string {
	return "room_members"
}
