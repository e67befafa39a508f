package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mathchat/internal/chat"
	"mathchat/internal/database"
	"mathchat/internal/middleware"
	"mathchat/internal/models"
	"mathchat/internal/websocket"
)

// WebSocketHandler поднимает live-каналы комнат: upgrade, начальный добор
// истории, затем обе помпы.
type WebSocketHandler struct {
	db       *database.Database
	hub      *websocket.Hub
	gateway  *chat.Gateway
	upgrader gorillaws.Upgrader
	log      zerolog.Logger
}

func NewWebSocketHandler(db *database.Database, hub *websocket.Hub, gateway *chat.Gateway, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		db:      db,
		hub:     hub,
		gateway: gateway,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws-handler").Logger(),
	}
}

// ServeRoom подключает канал к журналу комнаты. Сразу после регистрации
// клиент получает history-кадр от своего курсора after_seq, после чего
// живёт на push-рассылке.
func (h *WebSocketHandler) ServeRoom(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	member, err := h.db.IsMember(c.Request.Context(), username, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
		return
	}

	scope := models.Scope{Type: models.ScopeRoom, ID: roomID}
	afterSeq := afterSeqParam(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user", username).Msg("websocket upgrade")
		return
	}

	client := websocket.NewClient(h.hub, conn, username, scope)
	h.hub.Register(client)

	// Помпа записи стартует до добора истории: history-кадр уходит через
	// ту же очередь, что и live-кадры.
	go client.WritePump()

	msgs, err := h.db.ReadSince(context.Background(), scope, afterSeq, 0)
	if err != nil {
		h.log.Error().Err(err).Str("scope", scope.String()).Msg("initial history read")
		client.SendError("failed to load history")
	} else if err := client.SendHistory(msgs); err != nil {
		h.hub.Unregister(client)
		return
	}

	// Запрос уже перехвачен upgrade-ом, его контекст не отменяется по
	// завершении хендлера; жизнью канала управляет сама помпа чтения.
	go client.ReadPump(context.Background(), h.gateway)
}
