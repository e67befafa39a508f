package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScopeType — вид журнала, к которому привязано сообщение.
type ScopeType string

const (
	ScopeConversation ScopeType = "conversation"
	ScopeRoom         ScopeType = "room"
)

// Scope — единица нумерации сообщений: конкретная комната или сессия.
type Scope struct {
	Type ScopeType
	ID   uuid.UUID
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.Type, s.ID)
}

// Роли авторов сообщений.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message — одна запись журнала. Seq монотонен внутри scope и является
// единственным ключом упорядочивания; CreatedAt носит справочный характер.
// ClientToken подавляет повторную отправку одного логического хода через
// разные пути входа.
type Message struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScopeType   ScopeType `gorm:"size:16;not null;uniqueIndex:uk_scope_seq;uniqueIndex:uk_scope_token"`
	ScopeID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_scope_seq;uniqueIndex:uk_scope_token"`
	Seq         uint64    `gorm:"not null;uniqueIndex:uk_scope_seq"`
	Author      string    `gorm:"size:64;not null"`
	Role        string    `gorm:"size:16;not null"`
	Content     string    `gorm:"not null"`
	ClientToken *string   `gorm:"size:64;uniqueIndex:uk_scope_token"`
	CreatedAt   time.Time
}

// Scope возвращает область сообщения.
func (m *Message) Scope() Scope {
	return Scope{Type: m.ScopeType, ID: m.ScopeID}
}
