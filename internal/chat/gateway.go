// Package chat — шлюз входа: единственная дорога, которой любой ход
// попадает в журнал. Сокетные клиенты, REST-клиенты и релей ассистента
// проходят один и тот же путь: фиксация в хранилище, затем рассылка через
// hub, затем — для адресованных пользовательских ходов — запуск релея.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"mathchat/internal/assistant"
	"mathchat/internal/database"
	"mathchat/internal/models"
	"mathchat/internal/websocket"
)

// Ошибки, которые шлюз возвращает сокетному клиенту. Их текст уходит на
// провод error-кадром, поэтому сырые ошибки хранилища сюда не попадают.
var (
	errCommitFailed       = errors.New("failed to commit message")
	errHistoryUnavailable = errors.New("failed to load history")
)

type Gateway struct {
	db  *database.Database
	hub *websocket.Hub

	relay         *assistant.Relay
	recognizer    assistant.Recognizer
	assistantName string

	// Фиксация и рассылка одного журнала идут под одним замком: порядок
	// кадров на каждом канале обязан совпадать с порядком seq.
	fanMu   sync.Mutex
	fanLock map[models.Scope]*sync.Mutex

	log zerolog.Logger
}

func NewGateway(db *database.Database, hub *websocket.Hub, assistantName string, log zerolog.Logger) *Gateway {
	return &Gateway{
		db:            db,
		hub:           hub,
		assistantName: assistantName,
		fanLock:       make(map[models.Scope]*sync.Mutex),
		log:           log.With().Str("component", "gateway").Logger(),
	}
}

func (g *Gateway) scopeLock(scope models.Scope) *sync.Mutex {
	g.fanMu.Lock()
	defer g.fanMu.Unlock()

	mu, ok := g.fanLock[scope]
	if !ok {
		mu = &sync.Mutex{}
		g.fanLock[scope] = mu
	}
	return mu
}

// AttachRelay подключает релей ассистента. Без релея шлюз работает как
// обычный чат: ходы фиксируются и рассылаются, ничего не триггерится.
func (g *Gateway) AttachRelay(relay *assistant.Relay, recognizer assistant.Recognizer) {
	g.relay = relay
	g.recognizer = recognizer
}

// Post принимает один ход: фиксирует его в журнале, рассылает живым
// каналам и при необходимости запускает запрос к ассистенту. Повторная
// отправка с тем же client_token возвращает уже зафиксированное сообщение
// без побочных эффектов.
func (g *Gateway) Post(ctx context.Context, scope models.Scope, author, role, content, clientToken string) (*models.Message, error) {
	var token *string
	if clientToken != "" {
		token = &clientToken
	}

	msg, created, err := g.commit(ctx, scope, author, role, content, token)
	if err != nil {
		return nil, err
	}
	if !created {
		return msg, nil
	}

	if role == models.RoleUser && g.relay != nil {
		if query, ok := g.shouldTrigger(scope, content); ok {
			// Релей живёт дольше исходного запроса: поток апстрима не
			// должен обрываться из-за завершения HTTP-хендлера.
			go g.relay.Run(context.Background(), scope, query)
		}
	}

	return msg, nil
}

// commit фиксирует ход и рассылает его живым каналам. Два параллельных
// писателя одного журнала не могут перемежать свои пары append/broadcast:
// без этого канал получил бы seq 2 раньше seq 1.
func (g *Gateway) commit(ctx context.Context, scope models.Scope, author, role, content string, token *string) (*models.Message, bool, error) {
	mu := g.scopeLock(scope)
	mu.Lock()
	defer mu.Unlock()

	msg, created, err := g.db.AppendMessage(ctx, scope, author, role, content, token)
	if err != nil {
		return nil, false, err
	}
	if created {
		g.hub.Broadcast(scope, *msg)
	}
	return msg, created, nil
}

// shouldTrigger решает, адресован ли ход ассистенту. В приватной сессии
// ассистенту адресован каждый пользовательский ход; в комнате — только
// помеченный маркером обращения.
func (g *Gateway) shouldTrigger(scope models.Scope, content string) (string, bool) {
	switch scope.Type {
	case models.ScopeConversation:
		return strings.TrimSpace(content), true
	case models.ScopeRoom:
		return g.recognizer.Match(content)
	}
	return "", false
}

// CommitAssistant фиксирует итог запроса релея тем же путём, что и
// обычный ход. Роль assistant никогда не триггерит новый запрос —
// самоцепочек не бывает.
func (g *Gateway) CommitAssistant(ctx context.Context, scope models.Scope, content string) (*models.Message, error) {
	return g.Post(ctx, scope, g.assistantName, models.RoleAssistant, content, "")
}

// RecentHistory отдаёт релею окно недавних пользовательских ходов.
func (g *Gateway) RecentHistory(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error) {
	return g.db.ReadRecent(ctx, scope, models.RoleUser, limit)
}

// HandleMessage — message-кадр сокетного клиента.
func (g *Gateway) HandleMessage(ctx context.Context, c *websocket.Client, frame websocket.InboundFrame) error {
	if strings.TrimSpace(frame.Content) == "" {
		return websocket.ErrInvalidFrame
	}
	_, err := g.Post(ctx, c.Scope(), c.Username, models.RoleUser, frame.Content, frame.ClientToken)
	if err != nil {
		g.log.Error().Err(err).Str("scope", c.Scope().String()).Str("user", c.Username).Msg("socket message commit")
		return clientError(err)
	}
	return nil
}

// HandleSync — добор истории по курсору клиента: клиент получает ровно те
// сообщения, что прошли мимо него, без дубликатов уже увиденных.
func (g *Gateway) HandleSync(ctx context.Context, c *websocket.Client, afterSeq uint64) error {
	msgs, err := g.db.ReadSince(ctx, c.Scope(), afterSeq, 0)
	if err != nil {
		g.log.Error().Err(err).Str("scope", c.Scope().String()).Msg("socket history read")
		return errHistoryUnavailable
	}
	return c.SendHistory(msgs)
}

// clientError сводит ошибку к тексту, пригодному для error-кадра: известные
// ошибки протокола и журнала проходят как есть, всё остальное заменяется
// фиксированным уведомлением без деталей хранилища.
func clientError(err error) error {
	switch {
	case errors.Is(err, database.ErrScopeNotFound),
		errors.Is(err, websocket.ErrInvalidFrame):
		return err
	}
	return errCommitFailed
}
