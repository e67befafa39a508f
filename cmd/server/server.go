package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"mathchat/internal/assistant"
	"mathchat/internal/chat"
	"mathchat/internal/config"
	"mathchat/internal/database"
	"mathchat/internal/handlers"
	"mathchat/internal/websocket"
	"mathchat/pkg/auth"
)

type Server struct {
	Router *gin.Engine
	Config *config.Config
	DB     *database.Database
	Redis  *redis.Client
	Hub    *websocket.Hub

	log zerolog.Logger
}

func NewServer() *Server {
	cfg := config.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Env != "production" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db := &database.Database{}
	if err := db.Connect(cfg.DatabaseURL, cfg.SQLitePath); err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}

	// Redis опционален: без него logout просто не отзывает токены.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
	} else {
		log.Warn().Msg("REDIS_URL not set, token revocation disabled")
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	hub := websocket.NewHub(log)
	gateway := chat.NewGateway(db, hub, cfg.AssistantName, log)
	relay := assistant.NewRelay(assistant.NewClient(cfg), gateway, cfg.KBTimeout, cfg.KBHistoryLimit, log)
	gateway.AttachRelay(relay, assistant.Recognizer{Mention: cfg.AssistantMention})

	authH := handlers.NewAuthHandler(db, jwtMgr, rdb)
	convH := handlers.NewConversationHandler(db, gateway)
	roomH := handlers.NewRoomHandler(db, hub, gateway)
	wsH := handlers.NewWebSocketHandler(db, hub, gateway, log)

	router := gin.New()
	router.Use(gin.Recovery())
	APIEndpoints(router, jwtMgr, rdb, authH, convH, roomH, wsH)

	return &Server{
		Router: router,
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Hub:    hub,
		log:    log,
	}
}

// Run поднимает HTTP-сервер и ждёт SIGINT/SIGTERM; по сигналу гасит
// приём соединений, затем закрывает live-каналы.
func (s *Server) Run() {
	go s.Hub.Run()

	srv := &http.Server{
		Addr:    ":" + s.Config.Port,
		Handler: s.Router,
	}

	go func() {
		s.log.Info().Str("port", s.Config.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("server run error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	s.log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("server shutdown")
	}
	s.Hub.Stop()
}
