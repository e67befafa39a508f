package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"mathchat/pkg/auth"
)

// UsernameKey — ключ контекста gin с проверенным именем пользователя.
// Дальше этой прослойки ядро видит только готовую строку-идентификатор.
const UsernameKey = "username"

// AuthMiddleware проверяет JWT и чёрный список разлогиненных токенов.
func AuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			c.Abort()
			return
		}
		authorize(c, token, jwtManager, redisClient)
	}
}

// WSAuthMiddleware — вариант для WebSocket: браузерные клиенты не могут
// выставить заголовок на upgrade-запросе, токен допускается в query.
func WSAuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}
		authorize(c, token, jwtManager, redisClient)
	}
}

func authorize(c *gin.Context, token string, jwtManager *auth.JWTManager, redisClient *redis.Client) {
	if redisClient != nil {
		exists, err := redisClient.Exists(context.Background(), "blacklist:"+token).Result()
		if err != nil || exists > 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token is revoked"})
			c.Abort()
			return
		}
	}

	claims, err := jwtManager.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		c.Abort()
		return
	}
	if claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user"})
		c.Abort()
		return
	}

	c.Set(UsernameKey, claims.Subject)
	c.Next()
}
