package websocket

import (
	"time"

	"github.com/google/uuid"

	"mathchat/internal/models"
)

// Типы кадров протокола.
const (
	FrameMessage = "message"
	FrameSync    = "sync"
	FrameHistory = "history"
	FrameError   = "error"
	FramePing    = "ping"
)

// InboundFrame — входящий кадр от клиента. Пустой Type трактуется как
// message. Автором всегда считается аутентифицированный пользователь
// соединения, поле author носит справочный характер.
type InboundFrame struct {
	Type        string `json:"type,omitempty"`
	Author      string `json:"author,omitempty"`
	Content     string `json:"content,omitempty"`
	ClientToken string `json:"client_token,omitempty"`
	AfterSeq    uint64 `json:"after_seq,omitempty"`
}

// OutboundFrame — исходящий кадр: тот же состав полей, обогащённый
// назначенным seq. history-кадр несёт пакет сообщений для добора.
type OutboundFrame struct {
	Type        string          `json:"type"`
	ID          uuid.UUID       `json:"id,omitempty"`
	Author      string          `json:"author,omitempty"`
	Role        string          `json:"role,omitempty"`
	Content     string          `json:"content,omitempty"`
	ClientToken string          `json:"client_token,omitempty"`
	Seq         uint64          `json:"seq,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	Messages    []OutboundFrame `json:"messages,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// MessageFrame строит message-кадр из записи журнала.
func MessageFrame(m models.Message) OutboundFrame {
	f := OutboundFrame{
		Type:      FrameMessage,
		ID:        m.ID,
		Author:    m.Author,
		Role:      m.Role,
		Content:   m.Content,
		Seq:       m.Seq,
		CreatedAt: m.CreatedAt,
	}
	if m.ClientToken != nil {
		f.ClientToken = *m.ClientToken
	}
	return f
}

// HistoryFrame строит пакет для первичной загрузки или добора.
func HistoryFrame(msgs []models.Message) OutboundFrame {
	frame := OutboundFrame{Type: FrameHistory, Messages: make([]OutboundFrame, 0, len(msgs))}
	for _, m := range msgs {
		frame.Messages = append(frame.Messages, MessageFrame(m))
	}
	return frame
}
