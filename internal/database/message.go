package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mathchat/internal/metrics"
	"mathchat/internal/models"
)

// AppendMessage атомарно назначает следующий seq журнала и сохраняет
// сообщение. Если передан clientToken и сообщение с таким токеном уже есть
// в этом журнале, возвращается существующая запись с created=false —
// повторная отправка идемпотентна и не считается ошибкой.
func (d *Database) AppendMessage(ctx context.Context, scope models.Scope, author, role, content string, clientToken *string) (*models.Message, bool, error) {
	mu := d.scopeLock(scope)
	mu.Lock()
	defer mu.Unlock()

	var saved *models.Message
	created := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := scopeExists(tx, scope)
		if err != nil {
			return err
		}
		if !ok {
			return ErrScopeNotFound
		}

		if clientToken != nil && *clientToken != "" {
			var existing models.Message
			err := tx.Where("scope_type = ? AND scope_id = ? AND client_token = ?",
				scope.Type, scope.ID, *clientToken).First(&existing).Error
			if err == nil {
				metrics.DuplicateSubmissions.Inc()
				saved = &existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var maxSeq uint64
		err = tx.Model(&models.Message{}).
			Where("scope_type = ? AND scope_id = ?", scope.Type, scope.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return err
		}

		msg := models.Message{
			ID:          uuid.New(),
			ScopeType:   scope.Type,
			ScopeID:     scope.ID,
			Seq:         maxSeq + 1,
			Author:      author,
			Role:        role,
			Content:     content,
			ClientToken: clientToken,
			CreatedAt:   time.Now(),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		metrics.MessagesAppended.WithLabelValues(string(scope.Type), role).Inc()
		saved = &msg
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return saved, created, nil
}

// ReadRecent возвращает последние limit сообщений журнала с данной ролью,
// в порядке возрастания seq — окно контекста для запроса к базе знаний.
func (d *Database) ReadRecent(ctx context.Context, scope models.Scope, role string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := d.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ? AND role = ?", scope.Type, scope.ID, role).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ReadSince возвращает сообщения журнала с seq > afterSeq, строго по
// возрастанию seq. limit <= 0 — без ограничения.
func (d *Database) ReadSince(ctx context.Context, scope models.Scope, afterSeq uint64, limit int) ([]models.Message, error) {
	query := d.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ? AND seq > ?", scope.Type, scope.ID, afterSeq).
		Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []models.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// ReadAll возвращает весь журнал для первичной загрузки сессии.
func (d *Database) ReadAll(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	return d.ReadSince(ctx, scope, 0, 0)
}

// LastSeq возвращает текущий максимальный seq журнала (0 — журнал пуст).
func (d *Database) LastSeq(ctx context.Context, scope models.Scope) (uint64, error) {
	var maxSeq uint64
	err := d.db.WithContext(ctx).Model(&models.Message{}).
		Where("scope_type = ? AND scope_id = ?", scope.Type, scope.ID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	return maxSeq, err
}

func scopeExists(tx *gorm.DB, scope models.Scope) (bool, error) {
	var count int64
	var err error
	switch scope.Type {
	case models.ScopeConversation:
		err = tx.Model(&models.Conversation{}).Where("id = ?", scope.ID).Count(&count).Error
	case models.ScopeRoom:
		err = tx.Model(&models.Room{}).Where("id = ?", scope.ID).Count(&count).Error
	default:
		return false, nil
	}
	return count > 0, err
}
