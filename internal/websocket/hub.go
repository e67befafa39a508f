package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mathchat/internal/metrics"
	"mathchat/internal/models"
)

// Hub отслеживает живые каналы по журналам и веером раздаёт им сообщения.
// Hub ничего не сохраняет: это чисто эфемерный слой поверх хранилища.
type Hub struct {
	mu     sync.RWMutex
	scopes map[models.Scope]map[uuid.UUID]*Client

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		scopes: make(map[models.Scope]map[uuid.UUID]*Client),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "hub").Logger(),
	}
}

// Run периодически шлёт прикладной ping всем каналам, чтобы промежуточные
// прокси не закрывали простаивающие соединения. Завершается по Stop.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop закрывает все каналы и останавливает hub.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.scopes {
		for _, c := range clients {
			c.close()
		}
	}
	h.scopes = make(map[models.Scope]map[uuid.UUID]*Client)
}

// Register подключает канал к журналу. Каждому Register должен
// соответствовать Unregister.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.scopes[c.scope]
	if !ok {
		clients = make(map[uuid.UUID]*Client)
		h.scopes[c.scope] = clients
	}
	clients[c.ID] = c

	h.log.Debug().Str("scope", c.scope.String()).Str("user", c.Username).Msg("client registered")
}

// Unregister отключает канал. Идемпотентен: повторный вызов и вызов для
// незарегистрированного канала — no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.scopes[c.scope]
	if !ok {
		return
	}
	if _, ok := clients[c.ID]; !ok {
		return
	}

	delete(clients, c.ID)
	if len(clients) == 0 {
		delete(h.scopes, c.scope)
	}
	c.close()

	h.log.Debug().Str("scope", c.scope.String()).Str("user", c.Username).Msg("client unregistered")
}

// Broadcast доставляет сообщение всем каналам журнала. Доставка
// best-effort: канал, не принявший кадр, снимается с учёта, остальные
// получают сообщение независимо от его судьбы.
func (h *Hub) Broadcast(scope models.Scope, msg models.Message) {
	data, err := json.Marshal(MessageFrame(msg))
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast frame")
		return
	}

	// Снимок списка каналов до рассылки: отправка идёт без блокировки,
	// параллельные connect/disconnect не видят наполовину изменённого
	// множества и не ждут завершения рассылки.
	for _, c := range h.snapshot(scope) {
		applied, err := c.deliver(msg, data)
		if !applied {
			// канал уже видел этот seq (например, через добор истории)
			continue
		}
		if err != nil {
			metrics.BroadcastsDropped.Inc()
			h.log.Warn().Str("user", c.Username).Err(err).Msg("dropping slow client")
			h.Unregister(c)
			continue
		}
		metrics.BroadcastsDelivered.Inc()
	}
}

func (h *Hub) snapshot(scope models.Scope) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.scopes[scope]
	out := make([]*Client, 0, len(clients))
	for _, c := range clients {
		out = append(out, c)
	}
	return out
}

// ClientCount возвращает число живых каналов журнала.
func (h *Hub) ClientCount(scope models.Scope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}

// Users возвращает имена пользователей, подключённых к журналу.
func (h *Hub) Users(scope models.Scope) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	users := make([]string, 0, len(h.scopes[scope]))
	for _, c := range h.scopes[scope] {
		if !seen[c.Username] {
			seen[c.Username] = true
			users = append(users, c.Username)
		}
	}
	return users
}

func (h *Hub) ping() {
	data, err := json.Marshal(OutboundFrame{Type: FramePing})
	if err != nil {
		return
	}

	for _, scope := range h.scopeList() {
		for _, c := range h.snapshot(scope) {
			_ = c.enqueue(data)
		}
	}
}

func (h *Hub) scopeList() []models.Scope {
	h.mu.RLock()
	defer h.mu.RUnlock()

	scopes := make([]models.Scope, 0, len(h.scopes))
	for s := range h.scopes {
		scopes = append(scopes, s)
	}
	return scopes
}
