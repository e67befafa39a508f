package dto

import (
	"time"

	"github.com/google/uuid"

	"mathchat/internal/models"
)

// SendMessageRequest — один ход через REST-поверхность.
type SendMessageRequest struct {
	Content     string `json:"content" binding:"required"`
	ClientToken string `json:"client_token,omitempty"`
}

// CreateConversationRequest создаёт сессию; непустой content сразу
// отправляет первый ход.
type CreateConversationRequest struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

type CreateRoomRequest struct {
	Title string `json:"title" binding:"required,max=64"`
}

type JoinRoomRequest struct {
	InviteCode string `json:"invite_code" binding:"required,len=6"`
}

// MessageResponse — зафиксированное сообщение с назначенным seq.
type MessageResponse struct {
	ID          uuid.UUID `json:"id"`
	ScopeType   string    `json:"scope_type"`
	ScopeID     uuid.UUID `json:"scope_id"`
	Author      string    `json:"author"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Seq         uint64    `json:"seq"`
	ClientToken string    `json:"client_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewMessageResponse(m *models.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		ScopeType: string(m.ScopeType),
		ScopeID:   m.ScopeID,
		Author:    m.Author,
		Role:      m.Role,
		Content:   m.Content,
		Seq:       m.Seq,
		CreatedAt: m.CreatedAt,
	}
	if m.ClientToken != nil {
		resp.ClientToken = *m.ClientToken
	}
	return resp
}

func NewMessageList(msgs []models.Message) []MessageResponse {
	out := make([]MessageResponse, len(msgs))
	for i := range msgs {
		out[i] = NewMessageResponse(&msgs[i])
	}
	return out
}
