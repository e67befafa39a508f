package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mathchat/internal/handlers"
	"mathchat/internal/middleware"
	"mathchat/pkg/auth"
)

func APIEndpoints(
	r *gin.Engine,
	jwtMgr *auth.JWTManager,
	rdb *redis.Client,
	authH *handlers.AuthHandler,
	convH *handlers.ConversationHandler,
	roomH *handlers.RoomHandler,
	wsH *handlers.WebSocketHandler,
) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.POST("/logout", authH.Logout)
	}

	// API endpoints
	api := r.Group("/api", middleware.AuthMiddleware(jwtMgr, rdb))
	{
		api.POST("/conversations", convH.CreateConversation)
		api.GET("/conversations", convH.ListConversations)
		api.DELETE("/conversations/:id", convH.DeleteConversation)
		api.GET("/conversations/:id/messages", convH.GetMessages)
		api.POST("/conversations/:id/messages", convH.SendMessage)

		api.POST("/rooms", roomH.CreateRoom)
		api.POST("/rooms/join", roomH.JoinRoom)
		api.GET("/rooms", roomH.ListRooms)
		api.GET("/rooms/:id", roomH.GetRoom)
		api.GET("/rooms/:id/messages", roomH.GetMessages)
		api.POST("/rooms/:id/messages", roomH.SendMessage)
	}

	// Live-каналы комнат
	r.GET("/ws/rooms/:id", middleware.WSAuthMiddleware(jwtMgr, rdb), wsH.ServeRoom)
}
