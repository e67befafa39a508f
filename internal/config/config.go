package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config — вся конфигурация сервера из окружения.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // postgres DSN; пусто — используется SQLitePath
	SQLitePath  string
	RedisURL    string
	JWTSecret   string
	JWTTTL      time.Duration

	// Параметры обращения к базе знаний. Это константы генерации,
	// не меняющиеся от запроса к запросу.
	KBURL            string
	KBName           string
	KBModel          string
	KBTopK           int
	KBScoreThreshold float64
	KBTemperature    float64
	KBTimeout        time.Duration
	KBHistoryLimit   int

	// Маркер обращения к ассистенту в групповых комнатах и имя,
	// под которым ассистент пишет в журнал.
	AssistantMention string
	AssistantName    string
}

// Load читает конфигурацию из переменных окружения, подхватывая .env
// при локальной разработке.
func Load() *Config {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "mathchat.db"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTTTL:      getDuration("JWT_TTL", 24*time.Hour),

		KBURL:            getEnv("KB_URL", "http://127.0.0.1:7861/chat/knowledge_base_chat"),
		KBName:           getEnv("KB_NAME", "math"),
		KBModel:          getEnv("KB_MODEL", "chatglm3-6b"),
		KBTopK:           getInt("KB_TOP_K", 3),
		KBScoreThreshold: getFloat("KB_SCORE_THRESHOLD", 0.85),
		KBTemperature:    getFloat("KB_TEMPERATURE", 0.3),
		KBTimeout:        getDuration("KB_TIMEOUT", 30*time.Second),
		KBHistoryLimit:   getInt("KB_HISTORY_LIMIT", 10),

		AssistantMention: getEnv("ASSISTANT_MENTION", "@assistant"),
		AssistantName:    getEnv("ASSISTANT_NAME", "assistant"),
	}
}

// IsDevelopment сообщает, что сервер запущен в режиме разработки.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
