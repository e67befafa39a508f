package database

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mathchat/internal/models"
)

const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CreateRoom создаёт комнату со свежим кодом приглашения и сразу вносит
// создателя в участники — комната никогда не видна без единого члена.
// Кандидат кода проверяется на занятость и перегенерируется до успеха;
// пространство кодов на порядки больше числа комнат, так что на практике
// хватает одной попытки.
func (d *Database) CreateRoom(ctx context.Context, title, creator string) (*models.Room, error) {
	d.codeMu.Lock()
	defer d.codeMu.Unlock()

	var room models.Room
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := freeInviteCode(tx)
		if err != nil {
			return err
		}

		room = models.Room{
			ID:         uuid.New(),
			Title:      title,
			InviteCode: code,
			CreatedAt:  time.Now(),
		}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}

		member := models.RoomMember{RoomID: room.ID, Username: creator}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func freeInviteCode(tx *gorm.DB) (string, error) {
	for {
		var b strings.Builder
		for i := 0; i < models.InviteCodeLength; i++ {
			b.WriteByte(inviteCodeAlphabet[rand.Intn(len(inviteCodeAlphabet))])
		}
		code := b.String()

		var count int64
		if err := tx.Model(&models.Room{}).Where("invite_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
}

// ResolveByCode находит комнату по коду приглашения.
func (d *Database) ResolveByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := d.db.WithContext(ctx).Where("invite_code = ?", code).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom возвращает комнату по id.
func (d *Database) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := d.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinRoom вносит пользователя в комнату. Повторное вступление — no-op.
func (d *Database) JoinRoom(ctx context.Context, username string, roomID uuid.UUID) error {
	if _, err := d.GetRoom(ctx, roomID); err != nil {
		return err
	}

	member := models.RoomMember{RoomID: roomID, Username: username}
	err := d.db.WithContext(ctx).Create(&member).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// IsMember проверяет членство пользователя в комнате.
func (d *Database) IsMember(ctx context.Context, username string, roomID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND username = ?", roomID, username).
		Count(&count).Error
	return count > 0, err
}

// ListRoomsFor возвращает комнаты, в которых состоит пользователь.
func (d *Database) ListRoomsFor(ctx context.Context, username string) ([]models.Room, error) {
	var rooms []models.Room
	err := d.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.username = ?", username).
		Order("rooms.created_at DESC").
		Find(&rooms).Error
	return rooms, err
}

// ListMembers возвращает участников комнаты.
func (d *Database) ListMembers(ctx context.Context, roomID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := d.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.username = users.username").
		Where("room_members.room_id = ?", roomID).
		Find(&users).Error
	return users, err
}
