package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mathchat/internal/chat"
	"mathchat/internal/database"
	"mathchat/internal/handlers/dto"
	"mathchat/internal/middleware"
	"mathchat/internal/models"
	"mathchat/internal/websocket"
)

type RoomHandler struct {
	db      *database.Database
	hub     *websocket.Hub
	gateway *chat.Gateway
}

func NewRoomHandler(db *database.Database, hub *websocket.Hub, gateway *chat.Gateway) *RoomHandler {
	return &RoomHandler{db: db, hub: hub, gateway: gateway}
}

// CreateRoom создаёт комнату; создатель автоматически становится участником.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.db.CreateRoom(c.Request.Context(), req.Title, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          room.ID,
		"title":       room.Title,
		"invite_code": room.InviteCode,
		"created_at":  room.CreatedAt,
	})
}

// JoinRoom вступает в комнату по коду приглашения. Повторное вступление
// не является ошибкой.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	var req dto.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.db.ResolveByCode(c.Request.Context(), req.InviteCode)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invite code not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		return
	}

	if err := h.db.JoinRoom(c.Request.Context(), username, room.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    room.ID,
		"title": room.Title,
	})
}

// ListRooms возвращает комнаты пользователя вместе с числом подключённых
// в данный момент каналов.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	rooms, err := h.db.ListRoomsFor(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}

	out := make([]gin.H, len(rooms))
	for i, room := range rooms {
		scope := models.Scope{Type: models.ScopeRoom, ID: room.ID}
		out[i] = gin.H{
			"id":          room.ID,
			"title":       room.Title,
			"invite_code": room.InviteCode,
			"created_at":  room.CreatedAt,
			"online":      h.hub.ClientCount(scope),
		}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

// GetRoom возвращает комнату, её участников и подключённых пользователей.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	roomID, ok := h.memberOf(c, username)
	if !ok {
		return
	}

	room, err := h.db.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	members, err := h.db.ListMembers(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
		return
	}

	memberList := make([]gin.H, len(members))
	for i, m := range members {
		memberList[i] = gin.H{
			"username": m.Username,
			"nickname": m.Nickname,
			"role":     m.Role,
		}
	}

	scope := models.Scope{Type: models.ScopeRoom, ID: roomID}
	c.JSON(http.StatusOK, gin.H{
		"id":          room.ID,
		"title":       room.Title,
		"invite_code": room.InviteCode,
		"created_at":  room.CreatedAt,
		"members":     memberList,
		"online":      h.hub.Users(scope),
	})
}

// GetMessages читает историю комнаты по курсору after_seq.
func (h *RoomHandler) GetMessages(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	roomID, ok := h.memberOf(c, username)
	if !ok {
		return
	}

	scope := models.Scope{Type: models.ScopeRoom, ID: roomID}
	msgs, err := h.db.ReadSince(c.Request.Context(), scope, afterSeqParam(c), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read messages"})
		return
	}

	c.JSON(http.StatusOK, messagesPage(msgs))
}

// SendMessage отправляет ход в комнату через REST-поверхность; сокетная
// поверхность ведёт в тот же шлюз.
func (h *RoomHandler) SendMessage(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	roomID, ok := h.memberOf(c, username)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scope := models.Scope{Type: models.ScopeRoom, ID: roomID}
	msg, err := h.gateway.Post(c.Request.Context(), scope, username, models.RoleUser, req.Content, req.ClientToken)
	if err != nil {
		if errors.Is(err, database.ErrScopeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, dto.NewMessageResponse(msg))
}

// memberOf разбирает :id и проверяет членство; при отказе ответ уже
// записан в контекст.
func (h *RoomHandler) memberOf(c *gin.Context, username string) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return uuid.Nil, false
	}

	member, err := h.db.IsMember(c.Request.Context(), username, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return uuid.Nil, false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
		return uuid.Nil, false
	}
	return roomID, true
}
