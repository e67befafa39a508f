package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mathchat/internal/models"
)

// CreateConversation создаёт приватную сессию. Пустой title заменяется
// меткой времени создания.
func (d *Database) CreateConversation(ctx context.Context, owner, title string) (*models.Conversation, error) {
	now := time.Now()
	if title == "" {
		title = "chat-" + now.Format("01-02 15:04")
	}

	conv := models.Conversation{
		ID:        uuid.New(),
		Owner:     owner,
		Title:     title,
		CreatedAt: now,
	}
	if err := d.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation возвращает сессию владельца; чужие сессии невидимы.
func (d *Database) GetConversation(ctx context.Context, owner string, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversationsFor возвращает сессии пользователя, новые первыми.
func (d *Database) ListConversationsFor(ctx context.Context, owner string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := d.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at DESC").
		Find(&convs).Error
	return convs, err
}

// DeleteConversation удаляет сессию вместе с её сообщениями. После удаления
// попытки записи в этот журнал завершаются ErrScopeNotFound.
func (d *Database) DeleteConversation(ctx context.Context, owner string, id uuid.UUID) error {
	scope := models.Scope{Type: models.ScopeConversation, ID: id}
	mu := d.scopeLock(scope)
	mu.Lock()
	defer mu.Unlock()

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		err := tx.Where("id = ? AND owner = ?", id, owner).First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Delete(&models.Message{},
			"scope_type = ? AND scope_id = ?", models.ScopeConversation, id).Error; err != nil {
			return err
		}
		return tx.Delete(&conv).Error
	})
}
