package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mathchat/internal/chat"
	"mathchat/internal/database"
	"mathchat/internal/handlers/dto"
	"mathchat/internal/middleware"
	"mathchat/internal/models"
)

type ConversationHandler struct {
	db      *database.Database
	gateway *chat.Gateway
}

func NewConversationHandler(db *database.Database, gateway *chat.Gateway) *ConversationHandler {
	return &ConversationHandler{db: db, gateway: gateway}
}

// CreateConversation создаёт сессию; непустой content в запросе сразу
// становится первым ходом (сессия «создаётся первым вопросом»).
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.db.CreateConversation(c.Request.Context(), username, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	resp := gin.H{
		"id":         conv.ID,
		"title":      conv.Title,
		"created_at": conv.CreatedAt,
	}

	if req.Content != "" {
		scope := models.Scope{Type: models.ScopeConversation, ID: conv.ID}
		msg, err := h.gateway.Post(c.Request.Context(), scope, username, models.RoleUser, req.Content, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post first message"})
			return
		}
		resp["first_message"] = dto.NewMessageResponse(msg)
	}

	c.JSON(http.StatusCreated, resp)
}

// ListConversations возвращает сессии пользователя, новые первыми.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	convs, err := h.db.ListConversationsFor(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	out := make([]gin.H, len(convs))
	for i, conv := range convs {
		out[i] = gin.H{
			"id":         conv.ID,
			"title":      conv.Title,
			"created_at": conv.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// DeleteConversation удаляет сессию вместе с историей.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	if err := h.db.DeleteConversation(c.Request.Context(), username, id); err != nil {
		if errors.Is(err, database.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
}

// GetMessages читает историю сессии по курсору after_seq.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	if _, err := h.db.GetConversation(c.Request.Context(), username, id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	scope := models.Scope{Type: models.ScopeConversation, ID: id}
	msgs, err := h.db.ReadSince(c.Request.Context(), scope, afterSeqParam(c), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read messages"})
		return
	}

	c.JSON(http.StatusOK, messagesPage(msgs))
}

// SendMessage отправляет ход в сессию; каждый пользовательский ход в
// приватной сессии адресован ассистенту.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	username := c.MustGet(middleware.UsernameKey).(string)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	if _, err := h.db.GetConversation(c.Request.Context(), username, id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scope := models.Scope{Type: models.ScopeConversation, ID: id}
	msg, err := h.gateway.Post(c.Request.Context(), scope, username, models.RoleUser, req.Content, req.ClientToken)
	if err != nil {
		if errors.Is(err, database.ErrScopeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, dto.NewMessageResponse(msg))
}

func afterSeqParam(c *gin.Context) uint64 {
	if v := c.Query("after_seq"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func limitParam(c *gin.Context) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return 0
}

func messagesPage(msgs []models.Message) gin.H {
	var lastSeq uint64
	if len(msgs) > 0 {
		lastSeq = msgs[len(msgs)-1].Seq
	}
	return gin.H{
		"messages": dto.NewMessageList(msgs),
		"last_seq": lastSeq,
	}
}
